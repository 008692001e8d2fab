package plesk

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, packet []byte) ([]byte, error) {
	args := m.Called(ctx, packet)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// packetWith matches packets containing fragment, e.g. "<site><get>".
func packetWith(fragment string) any {
	return mock.MatchedBy(func(p []byte) bool {
		return strings.Contains(string(p), fragment)
	})
}
