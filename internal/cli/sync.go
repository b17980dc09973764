package cli

import (
	"context"
	"fmt"
)

func (c *Cli) RunSync(ctx context.Context) error {
	fmt.Fprintln(c.out, "Synchronizing...")

	result, err := c.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if result == nil {
		// Цикл уже шел, запрос коалесцирован
		fmt.Fprintln(c.out, "Sync already in progress")
		return nil
	}

	fmt.Fprintf(c.out, "Pushed:    %d (acked %d, failed %d)\n", result.Pushed, result.Acked, result.Failed)
	fmt.Fprintf(c.out, "Pulled:    %d (applied %d, skipped %d)\n", result.Pulled, result.Applied, result.Skipped)
	if result.Conflicts > 0 {
		fmt.Fprintf(c.out, "Conflicts: %d (use 'localsync conflicts' to inspect)\n", result.Conflicts)
	}

	return c.saveClock(ctx)
}

func (c *Cli) RunStatus(ctx context.Context) error {
	pending, err := c.data.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending operations: %w", err)
	}

	failed, err := c.syncer.FailedOperations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list failed operations: %w", err)
	}

	conflicts, err := c.data.Conflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	fmt.Fprintf(c.out, "State:              %s\n", c.syncer.State())
	fmt.Fprintf(c.out, "Pending operations: %d\n", pending)
	fmt.Fprintf(c.out, "Failed operations:  %d\n", len(failed))
	fmt.Fprintf(c.out, "Open conflicts:     %d\n", len(conflicts))

	for _, op := range failed {
		fmt.Fprintf(c.out, "  failed: %s %s %s/%s.%s (attempts %d)\n",
			op.ID, op.Kind, op.Collection, op.EntityID, op.Field, op.Attempts)
	}
	return nil
}

func (c *Cli) RunConflicts(ctx context.Context) error {
	conflicts, err := c.data.Conflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	if len(conflicts) == 0 {
		fmt.Fprintln(c.out, "No unresolved conflicts")
		return nil
	}

	for _, conflict := range conflicts {
		fmt.Fprintf(c.out, "%s  %s/%s.%s\n",
			conflict.ID, conflict.Collection, conflict.EntityID, conflict.Field)
		fmt.Fprintf(c.out, "  local:  %s (t=%d, node=%s)\n",
			formatValue(conflict.Local), conflict.LocalStamp.Timestamp, conflict.LocalStamp.NodeID)
		fmt.Fprintf(c.out, "  remote: %s (t=%d, node=%s)\n",
			formatValue(conflict.Remote), conflict.RemoteStamp.Timestamp, conflict.RemoteStamp.NodeID)
	}
	return nil
}

func (c *Cli) RunResolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: localsync resolve <conflict-id> <local|remote>")
	}

	conflict, err := c.storage.GetConflict(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load conflict: %w", err)
	}

	chosen := conflict.Local
	switch args[1] {
	case "local":
	case "remote":
		chosen = conflict.Remote
	default:
		return fmt.Errorf("unknown side %q, expected local or remote", args[1])
	}

	if err := c.data.ResolveConflict(ctx, conflict.ID, chosen); err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	fmt.Fprintf(c.out, "Resolved %s with %s version\n", conflict.ID, args[1])
	return c.saveClock(ctx)
}
