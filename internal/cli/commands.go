package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/iudanet/localsync/internal/store"
)

func (c *Cli) RunSet(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: localsync set <collection> <id> <field> <value>")
	}

	if err := c.data.Set(ctx, args[0], args[1], args[2], args[3]); err != nil {
		return fmt.Errorf("failed to set field: %w", err)
	}

	fmt.Fprintf(c.out, "Set %s/%s %s = %s\n", args[0], args[1], args[2], args[3])
	return c.saveClock(ctx)
}

func (c *Cli) RunGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: localsync get <collection> <id>")
	}

	record, err := c.data.Get(ctx, args[0], args[1])
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return fmt.Errorf("entity not found: %s/%s", args[0], args[1])
		}
		return fmt.Errorf("failed to get entity: %w", err)
	}

	fmt.Fprintf(c.out, "%s/%s\n", record.Collection, record.ID)
	for _, field := range sortedFields(record) {
		stamp := record.FieldStamp(field)
		fmt.Fprintf(c.out, "  %s: %s (t=%d, node=%s)\n",
			field, formatValue(record.Fields[field]), stamp.Timestamp, stamp.NodeID)
	}
	return nil
}

func (c *Cli) RunList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: localsync list <collection>")
	}

	records, err := c.data.List(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintf(c.out, "No entities in collection %s\n", args[0])
		return nil
	}

	fmt.Fprintf(c.out, "Found %d entities:\n", len(records))
	for _, record := range records {
		fmt.Fprintf(c.out, "  %s (%d fields)\n", record.ID, len(record.Fields))
	}
	return nil
}

func (c *Cli) RunDelete(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: localsync delete <collection> <id>")
	}

	if err := c.data.Delete(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	fmt.Fprintf(c.out, "Deleted %s/%s\n", args[0], args[1])
	return c.saveClock(ctx)
}

// runCounter обрабатывает команды incr, decr и bump
func (c *Cli) runCounter(ctx context.Context, args []string, apply func(ctx context.Context, collection, id, field string, delta int64) error, verb string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: localsync %s <collection> <id> <field> <delta>", verb)
	}

	delta, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil || delta <= 0 {
		return fmt.Errorf("delta must be a positive integer, got %q", args[3])
	}

	if err := apply(ctx, args[0], args[1], args[2], delta); err != nil {
		return fmt.Errorf("failed to %s counter: %w", verb, err)
	}

	fmt.Fprintf(c.out, "OK %s/%s %s %s %d\n", args[0], args[1], verb, args[2], delta)
	return c.saveClock(ctx)
}

func (c *Cli) RunIncr(ctx context.Context, args []string) error {
	return c.runCounter(ctx, args, c.data.Increment, "incr")
}

func (c *Cli) RunDecr(ctx context.Context, args []string) error {
	return c.runCounter(ctx, args, c.data.Decrement, "decr")
}

func (c *Cli) RunBump(ctx context.Context, args []string) error {
	return c.runCounter(ctx, args, c.data.IncrementCounter, "bump")
}

func (c *Cli) RunTag(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: localsync tag <collection> <id> <field> <element>")
	}

	if err := c.data.AddElement(ctx, args[0], args[1], args[2], args[3]); err != nil {
		return fmt.Errorf("failed to add element: %w", err)
	}

	fmt.Fprintf(c.out, "Added %q to %s/%s %s\n", args[3], args[0], args[1], args[2])
	return c.saveClock(ctx)
}

func (c *Cli) RunUntag(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: localsync untag <collection> <id> <field> <element>")
	}

	if err := c.data.RemoveElement(ctx, args[0], args[1], args[2], args[3]); err != nil {
		return fmt.Errorf("failed to remove element: %w", err)
	}

	fmt.Fprintf(c.out, "Removed %q from %s/%s %s\n", args[3], args[0], args[1], args[2])
	return c.saveClock(ctx)
}
