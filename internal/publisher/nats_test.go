package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		name    string
		account string
		want    string
	}{
		{name: "Empty account", account: "", want: "anonymous"},
		{name: "UUID stays intact", account: "a81bc81b-dead-4e5d-abff-90865d1e13b1", want: "a81bc81b-dead-4e5d-abff-90865d1e13b1"},
		{name: "Dots are replaced", account: "acme.travel", want: "acme_travel"},
		{name: "Wildcards are replaced", account: "evil.*.>", want: "evil____"},
		{name: "Spaces are replaced", account: "acme travel", want: "acme_travel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subjectToken(tt.account))
		})
	}
}

func TestConnectedOnNilPublisher(t *testing.T) {
	var p *NATSPublisher
	assert.False(t, p.Connected())
	p.Close()
}
