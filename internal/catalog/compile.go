package catalog

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// schema is unified with every catalog file before compilation.
// Constraint violations surface as CUE errors with positions.
const schema = `
program: {
	id:   string & !=""
	name: string & !=""
}

rewards: [string]: {
	name:            string & !=""
	points_cost:     int & >0
	max_redemptions: int & >=0
	active:          bool | *true
}
`

// Load reads and compiles a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	fileVal := ctx.CompileBytes(data, cue.Filename(path))
	if err := fileVal.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schemaVal.Unify(fileVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	return Compile(unified)
}

// Compile parses a unified CUE value into a Catalog.
// The value must already satisfy the catalog schema.
func Compile(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{}

	programVal := v.LookupPath(cue.ParsePath("program"))
	if !programVal.Exists() {
		return nil, &CompileError{
			Field:   "program",
			Message: "program is required",
			Pos:     v.Pos(),
		}
	}

	var err error
	cat.Program.ID, err = stringField(programVal, "id")
	if err != nil {
		return nil, err
	}
	cat.Program.Name, err = stringField(programVal, "name")
	if err != nil {
		return nil, err
	}

	rewardsVal := v.LookupPath(cue.ParsePath("rewards"))
	if rewardsVal.Exists() {
		iter, err := rewardsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}

		for iter.Next() {
			reward, err := compileReward(iter.Label(), cat.Program.ID, iter.Value())
			if err != nil {
				return nil, err
			}
			cat.Rewards = append(cat.Rewards, reward)
		}
	}

	if len(cat.Rewards) == 0 {
		return nil, &CompileError{
			Field:   "rewards",
			Message: "at least one reward is required",
			Pos:     v.Pos(),
		}
	}

	// Iteration order over CUE fields is not guaranteed; sort for
	// deterministic seeding.
	sort.Slice(cat.Rewards, func(i, j int) bool {
		return cat.Rewards[i].ID < cat.Rewards[j].ID
	})

	return cat, nil
}

// compileReward parses one reward definition. The struct label is the
// reward's identifier.
func compileReward(label, programID string, v cue.Value) (store.Reward, error) {
	reward := store.Reward{
		ID:        label,
		ProgramID: programID,
	}

	var err error
	reward.Name, err = stringField(v, "name")
	if err != nil {
		return store.Reward{}, err
	}

	reward.PointsCost, err = intField(v, "points_cost")
	if err != nil {
		return store.Reward{}, err
	}
	if reward.PointsCost <= 0 {
		return store.Reward{}, &CompileError{
			Field:   fmt.Sprintf("rewards.%s.points_cost", label),
			Message: "points_cost must be positive",
			Pos:     v.Pos(),
		}
	}

	reward.MaxRedemptions, err = intField(v, "max_redemptions")
	if err != nil {
		return store.Reward{}, err
	}
	if reward.MaxRedemptions < 0 {
		return store.Reward{}, &CompileError{
			Field:   fmt.Sprintf("rewards.%s.max_redemptions", label),
			Message: "max_redemptions must be non-negative",
			Pos:     v.Pos(),
		}
	}

	activeVal := v.LookupPath(cue.ParsePath("active"))
	if d, ok := activeVal.Default(); ok {
		activeVal = d
	}
	if activeVal.Exists() {
		active, err := activeVal.Bool()
		if err != nil {
			return store.Reward{}, formatCUEError(err)
		}
		reward.IsActive = active
	} else {
		reward.IsActive = true
	}

	return reward, nil
}

// stringField extracts a required string field.
func stringField(v cue.Value, name string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(name))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{
			Field:   name,
			Message: name + " must be non-empty",
			Pos:     fieldVal.Pos(),
		}
	}
	return s, nil
}

// intField extracts a required integer field.
func intField(v cue.Value, name string) (int64, error) {
	fieldVal := v.LookupPath(cue.ParsePath(name))
	if !fieldVal.Exists() {
		return 0, &CompileError{
			Field:   name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	n, err := fieldVal.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

// CompileError represents a catalog compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
