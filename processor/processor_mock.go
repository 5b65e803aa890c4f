package processor

import (
	"context"

	"github.com/stretchr/testify/mock"
)

var _ Processor = (*MockProcessor)(nil)

type MockProcessor struct {
	mock.Mock
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{}
}

func (p *MockProcessor) Process(ctx context.Context, msg *Message) error {
	args := p.Mock.Called(ctx, msg)
	return args.Error(0)
}
