package offsetrepo

import (
	"context"
	"errors"

	"github.com/hugolhafner/go-consumer/kafka"
)

var ErrNotRunning = errors.New("offsetrepo: repository not running")

// Repository is a service mirroring committed positions outside the broker,
// e.g. for dashboards or for seeding a consumer on a different cluster.
// Start and Stop are idempotent.
type Repository interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool

	// Store records offsets as the latest committed positions.
	Store(ctx context.Context, offsets kafka.Offsets) error

	// Load returns the stored position of one partition.
	Load(ctx context.Context, tp kafka.TopicPartition) (kafka.Offset, bool, error)

	// All returns every stored position.
	All(ctx context.Context) (kafka.Offsets, error)
}
