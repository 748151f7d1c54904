package rewind

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/rewind/internal/telemetry"
	"github.com/AnatoleLucet/rewind/value"
)

func newCore(t *testing.T, opts ...Option) *Core {
	t.Helper()

	opts = append([]Option{
		WithLogger(telemetry.Discard()),
		WithRegisterer(prometheus.NewRegistry()),
	}, opts...)

	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func cell(t *testing.T, c *Core, name string, initial int64) ID {
	t.Helper()
	id, err := c.DeclareReactive(name, value.Int(initial))
	require.NoError(t, err)
	return id
}

// times declares name as the value of id multiplied by n.
func times(t *testing.T, c *Core, name string, id ID, n int64) ID {
	t.Helper()
	d, err := c.DeclareComputed(name, func() (value.Value, error) {
		v, err := c.Read(id)
		if err != nil {
			return value.Nil, err
		}
		return value.Int(v.Int() * n), nil
	})
	require.NoError(t, err)
	return d
}

func intOf(t *testing.T, c *Core, id ID) int64 {
	t.Helper()
	v, err := c.Read(id)
	require.NoError(t, err)
	return v.Int()
}

func ExampleCore() {
	c, _ := New(WithLogger(slog.New(slog.DiscardHandler)))

	x, _ := c.DeclareReactive("x", value.Int(0))
	d, _ := c.DeclareComputed("d", func() (value.Value, error) {
		v, err := c.Read(x)
		return value.Int(v.Int() * 2), err
	})

	_ = c.Write(x, value.Int(5))
	v, _ := c.Read(d)
	fmt.Println(v)

	// Output:
	// 10
}

func ExampleCore_Rewind() {
	c, _ := New(WithLogger(slog.New(slog.DiscardHandler)))

	x, _ := c.DeclareReactive("x", value.Int(10))
	_, _ = c.Snapshot("")
	_ = c.Write(x, value.Int(20))

	_ = c.Rewind(ByCount(1))
	v, _ := c.Read(x)
	fmt.Println(v)

	// Output:
	// 10
}

func ExampleCore_DeclareEffect() {
	c, _ := New(WithLogger(slog.New(slog.DiscardHandler)))

	count, _ := c.DeclareReactive("count", value.Int(0))
	_, _ = c.DeclareEffect("log", func() error {
		v, err := c.Read(count)
		fmt.Println("count is", v)
		return err
	})

	_ = c.Batch(func() error {
		_ = c.Write(count, value.Int(1))
		return c.Write(count, value.Int(2))
	})

	// Output:
	// count is 0
	// count is 2
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("REWIND_HISTORY_MAX_VERSIONS", "7")
	t.Setenv("REWIND_HISTORY_AUTO_SNAPSHOT_EVERY", "3")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.History.MaxVersions)
	require.Equal(t, 3, cfg.History.AutoSnapshotEvery)

	c := newCore(t, WithConfig(cfg))
	require.Equal(t, 0, c.Stats().History.Versions)
}
