package kafka

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kgoPropertyOpts translates the ClientConfig properties franz-go understands
// into client options. Unknown keys are returned so the caller can report them;
// they may be meant for another Consumer implementation.
func kgoPropertyOpts(props map[string]string) ([]kgo.Opt, []string, error) {
	var (
		opts    []kgo.Opt
		unknown []string
	)

	for key, value := range props {
		switch key {
		case "auto.offset.reset":
			switch strings.ToLower(value) {
			case "earliest":
				opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
			case "latest":
				opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
			default:
				return nil, nil, fmt.Errorf("property %s: unknown value %q", key, value)
			}
		case "fetch.max.bytes":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil || n <= 0 {
				return nil, nil, fmt.Errorf("property %s: invalid size %q", key, value)
			}
			opts = append(opts, kgo.FetchMaxBytes(int32(n)))
		case "fetch.max.wait.ms":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, nil, fmt.Errorf("property %s: invalid duration %q", key, value)
			}
			opts = append(opts, kgo.FetchMaxWait(time.Duration(n)*time.Millisecond))
		case "client.rack":
			opts = append(opts, kgo.Rack(value))
		default:
			unknown = append(unknown, key)
		}
	}

	return opts, unknown, nil
}
