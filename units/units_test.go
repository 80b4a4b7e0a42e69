package units

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalBuiltin(t *testing.T) {
	assert.Equal(t, "g", Canonical(" Gram "))
	assert.Equal(t, "kg", Canonical("KG"))
	assert.Equal(t, "pcs", Canonical("st."))
	assert.Equal(t, "bunch", Canonical(" bunch "))
}

func TestLoadUnitsOverridesBuiltin(t *testing.T) {
	t.Cleanup(func() {
		mu.Lock()
		aliasMap = map[string]string{}
		mu.Unlock()
	})

	m, err := LoadUnits(strings.NewReader("blik,can\nst,piece\nbroken\n"))
	require.NoError(t, err)
	assert.Len(t, m, 2)

	assert.Equal(t, "can", Canonical("Blik"))
	assert.Equal(t, "piece", Canonical("st"))
	assert.Equal(t, "kg", Canonical("kilo"))
}
