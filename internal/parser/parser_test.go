package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyu-acsys/krill-sub000/internal/logic"
	"github.com/nyu-acsys/krill-sub000/internal/program"
)

const sampleModule = `
module list {
  macro unlock_curr() {
    release curr.lock;
  }

  fun contains(k: data) provides contains {
    scope (curr, found) {
      found := false;
      acquire curr.lock;
      choice {
        branch {
          assume (curr.key == k || curr.key != k);
          found := true;
        }
        branch {
          fail;
        }
      }
      loop {
        assume (curr.key < k);
        break;
      }
      call unlock_curr;
    }
    return found;
  }

  fun insert(k: data) provides insert {
    n := malloc(ptr(next) data(key));
    n.key := k;
    return true;
  }
}
`

func TestParseStringBuildsModule(t *testing.T) {
	mod, err := ParseString("sample.obj", sampleModule)
	require.NoError(t, err)
	require.Len(t, mod.Functions, 2)
	require.Contains(t, mod.Macros, "unlock_curr")

	contains := mod.Functions[0]
	assert.Equal(t, "contains", contains.Name)
	assert.Equal(t, logic.SpecContains, contains.Spec)
	assert.Equal(t, "k", contains.KeyArg)

	insert := mod.Functions[1]
	assert.Equal(t, logic.SpecInsert, insert.Spec)
}

func TestParseStringBuildsScopeAndChoiceShapes(t *testing.T) {
	mod, err := ParseString("sample.obj", sampleModule)
	require.NoError(t, err)

	seq, ok := mod.Functions[0].Body.(program.Sequence)
	require.True(t, ok)
	scope, ok := seq.A.(program.Scope)
	require.True(t, ok)
	assert.Equal(t, []string{"curr", "found"}, scope.Locals)

	ret, ok := seq.B.(program.Return)
	require.True(t, ok)
	ident, ok := ret.Value.(program.Ident)
	require.True(t, ok)
	assert.Equal(t, "found", ident.Name)
}

func TestParseStringBuildsMallocAndWrite(t *testing.T) {
	mod, err := ParseString("sample.obj", sampleModule)
	require.NoError(t, err)

	seq, ok := mod.Functions[1].Body.(program.Sequence)
	require.True(t, ok)

	malloc, ok := seq.A.(program.Malloc)
	require.True(t, ok)
	assert.Equal(t, "n", malloc.Var)
	assert.Equal(t, []string{"next"}, malloc.PointerFields)
	assert.Equal(t, []string{"key"}, malloc.DataFields)

	inner, ok := seq.B.(program.Sequence)
	require.True(t, ok)
	write, ok := inner.A.(program.Write)
	require.True(t, ok)
	assert.Equal(t, "n", write.Base)
	assert.Equal(t, "key", write.Field)
}

func TestParseStringBuildsOrCondition(t *testing.T) {
	mod, err := ParseString("sample.obj", sampleModule)
	require.NoError(t, err)

	scope := mod.Functions[0].Body.(program.Sequence).A.(program.Scope)
	ch := findChoice(t, scope.Body)
	branch0 := ch.Branches[0].(program.Sequence)
	assumeStmt, ok := branch0.A.(program.Assume)
	require.True(t, ok)
	or, ok := assumeStmt.Cond.(program.Or)
	require.True(t, ok)
	assert.Len(t, or.Conds, 2)
}

func findChoice(t *testing.T, cmd program.Command) program.Choice {
	t.Helper()
	switch c := cmd.(type) {
	case program.Choice:
		return c
	case program.Sequence:
		if ch, ok := c.A.(program.Choice); ok {
			return ch
		}
		return findChoice(t, c.B)
	}
	t.Fatalf("no choice found in %T", cmd)
	return program.Choice{}
}

func TestParseStringRejectsBadSyntax(t *testing.T) {
	_, err := ParseString("bad.obj", "module list { fun broken( }")
	require.Error(t, err)
}
