package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int) []Turn {
	turns := make([]Turn, n)
	for i := range turns {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		turns[i] = TextTurn(role, fmt.Sprintf("m%d", i))
	}
	return turns
}

func TestTruncate_DropsOldestFirst(t *testing.T) {
	history := append(numbered(4), TextTurn(RoleUser, "m4"), TextTurn(RoleModel, "m5"))

	result := Truncate(history, 4)

	require.Len(t, result, 4)
	for i, want := range []string{"m2", "m3", "m4", "m5"} {
		assert.Equal(t, want, result[i].Parts[0].Text)
	}
}

func TestTruncate_NoTruncation(t *testing.T) {
	assert.Len(t, Truncate(numbered(3), 4), 3)
	assert.Len(t, Truncate(numbered(4), 4), 4)
}

func TestTruncate_EmptyInput(t *testing.T) {
	assert.Empty(t, Truncate(nil, 4))
}

func TestTruncate_ZeroMax(t *testing.T) {
	assert.Len(t, Truncate(numbered(5), 0), 5, "no truncation with 0 max")
}
