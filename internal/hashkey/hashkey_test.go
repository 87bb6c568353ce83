package hashkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{
			name: "subscriber",
			id:   Identity{Salt: "pepper", Ordinal: 3, Subscriber: "acme-subscriber", Receiver: "receiver-01"},
			want: "0c94d5a12181cdd5522db86b8963862ad4480f0921a5d411a5849acce24e93293294cf5ffc69fbefee66ac3c990115eeeacaef839c063a9fe51698aea9e22d1f",
		},
		{
			name: "empty identity",
			id:   Identity{},
			want: "a4121ece70e75bd63b6f8bb3c744ccfa1ce302ddff634f2e7ce7c00c7bdd9f3efedcb4a3bf68b83414e440faa1bd549139a21db4c56b5e0776c7e460f482f47d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.id)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 2*KeyLength)
		})
	}
}

func TestDeriveDistinguishesOrdinal(t *testing.T) {
	a := Identity{Salt: "pepper", Ordinal: 1, Subscriber: "s", Receiver: "r"}
	b := a
	b.Ordinal = 2
	assert.NotEqual(t, Derive(a), Derive(b))
	assert.Equal(t, Derive(a), Derive(a))
}
