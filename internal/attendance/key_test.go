package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKey() Key {
	return Key{
		ClassID:     "CS-3A",
		Date:        "2024-03-14",
		Subject:     "Algorithms",
		ClassType:   "lecture",
		FacultyID:   "f1",
		FacultyName: "Dr. Turing",
	}
}

func TestKeyValidate(t *testing.T) {
	require.NoError(t, validKey().Validate())

	tests := []struct {
		name   string
		mutate func(*Key)
		reason string
	}{
		{"missing class", func(k *Key) { k.ClassID = "" }, "ClassID is required"},
		{"bad date", func(k *Key) { k.Date = "14/03/2024" }, "Date must be YYYY-MM-DD"},
		{"impossible date", func(k *Key) { k.Date = "2024-02-30" }, "Date must be YYYY-MM-DD"},
		{"missing faculty", func(k *Key) { k.FacultyID = "" }, "FacultyID is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := validKey()
			tt.mutate(&k)
			err := k.Validate()
			var kerr *KeyError
			require.ErrorAs(t, err, &kerr)
			assert.Contains(t, kerr.Reasons, tt.reason)
		})
	}
}

func TestKeySlot(t *testing.T) {
	a := validKey()
	b := validKey()
	b.ClassType = "lab"
	b.FacultyName = "Alan"
	assert.Equal(t, a.Slot(), b.Slot(), "class type and faculty name do not split the slot")

	c := validKey()
	c.FacultyID = "f2"
	assert.NotEqual(t, a.Slot(), c.Slot())
}

func TestKeyNormalize(t *testing.T) {
	k := Key{ClassID: " CS-3A ", Date: "2024-03-14\n", Subject: " Algorithms", FacultyID: "f1 "}.Normalize()
	assert.Equal(t, "CS-3A", k.ClassID)
	assert.Equal(t, "2024-03-14", k.Date)
	assert.Equal(t, "Algorithms", k.Subject)
	assert.Equal(t, "f1", k.FacultyID)
}
