package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInventoryLookupReturnsCopy(t *testing.T) {
	inv := NewInventory()
	inv.Add("web", Host{Name: "a"})
	inv.Add("web", Host{Name: "b"})

	hosts := inv.Lookup("web")
	hosts[0].Name = "mutated"

	assert.Equal(t, "a", inv.Lookup("web")[0].Name)
}

func TestInventoryNilAndZeroValue(t *testing.T) {
	var nilInv *Inventory
	assert.Empty(t, nilInv.Lookup("web"))
	assert.Nil(t, nilInv.Groups())

	var zero Inventory
	zero.Add("db", Host{Name: "db1"})
	assert.Equal(t, []string{"db"}, zero.Groups())
}

func TestHostAddress(t *testing.T) {
	assert.Equal(t, "web1", Host{Name: "web1"}.Address())
	assert.Equal(t, "10.1.1.1", Host{Name: "web1", Vars: map[string]string{"ansible_host": "10.1.1.1"}}.Address())
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "ok", OutcomeSuccess.String())
	assert.Equal(t, "failed", OutcomeFailure.String())
	assert.Equal(t, "unreachable", OutcomeUnreachable.String())
	assert.Equal(t, "unknown", OutcomeKind(42).String())
}
