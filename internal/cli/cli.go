// Package cli реализует командный интерфейс локального хранилища:
// мутации данных, синхронизация и разрешение конфликтов.
package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/iudanet/localsync/internal/crdt"
	"github.com/iudanet/localsync/internal/data"
	"github.com/iudanet/localsync/internal/models"
	"github.com/iudanet/localsync/internal/store"
	"github.com/iudanet/localsync/internal/syncer"
)

type Cli struct {
	data    *data.Service
	syncer  *syncer.Service
	storage store.Storage
	clock   *crdt.Clock
	out     io.Writer
}

func New(dataService *data.Service, syncService *syncer.Service, storage store.Storage, clock *crdt.Clock, out io.Writer) *Cli {
	return &Cli{
		data:    dataService,
		syncer:  syncService,
		storage: storage,
		clock:   clock,
		out:     out,
	}
}

func PrintUsage() {
	fmt.Println("LocalSync Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  localsync [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version              Show version information")
	fmt.Println("  --server URL           Sync endpoint URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH              Path to local database (default: localsync.db)")
	fmt.Println("  --collections LIST     Comma-separated collections to sync (default: notes)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  set <collection> <id> <field> <value>     Set a scalar field")
	fmt.Println("  get <collection> <id>                     Show entity fields")
	fmt.Println("  list <collection>                         List entities in a collection")
	fmt.Println("  delete <collection> <id>                  Delete an entity (soft delete)")
	fmt.Println("  incr <collection> <id> <field> <delta>    Increment a PN-Counter field")
	fmt.Println("  decr <collection> <id> <field> <delta>    Decrement a PN-Counter field")
	fmt.Println("  bump <collection> <id> <field> <delta>    Increment a grow-only counter field")
	fmt.Println("  tag <collection> <id> <field> <element>   Add an element to a set field")
	fmt.Println("  untag <collection> <id> <field> <element> Remove an element from a set field")
	fmt.Println("  sync                                      Run a synchronization cycle")
	fmt.Println("  status                                    Show pending operations and conflicts")
	fmt.Println("  conflicts                                 Show unresolved conflicts")
	fmt.Println("  resolve <conflict-id> <local|remote>      Resolve a conflict")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  localsync set notes note-1 title 'Shopping list'")
	fmt.Println("  localsync bump notes note-1 views 1")
	fmt.Println("  localsync tag notes note-1 tags urgent")
	fmt.Println("  localsync sync")
}

// saveClock сохраняет состояние логических часов после мутаций и циклов
// синхронизации, чтобы timestamp не откатился после перезапуска
func (c *Cli) saveClock(ctx context.Context) error {
	if err := c.storage.SaveClockState(ctx, c.clock.Now()); err != nil {
		return fmt.Errorf("failed to persist clock state: %w", err)
	}
	return nil
}

// formatValue печатает значение поля в читаемом виде
func formatValue(v models.FieldValue) string {
	switch v.Kind {
	case models.FieldKindScalar:
		return fmt.Sprintf("%v", v.Scalar)
	case models.FieldKindRegister:
		if v.Register != nil {
			return fmt.Sprintf("%v", v.Register.Value)
		}
	case models.FieldKindCounter:
		if v.Counter != nil {
			return fmt.Sprintf("%d", v.Counter.Value())
		}
	case models.FieldKindPNCounter:
		if v.PNCounter != nil {
			return fmt.Sprintf("%d", v.PNCounter.Value())
		}
	case models.FieldKindSet:
		if v.Set != nil {
			return strings.Join(v.Set.Elements(), ", ")
		}
	}
	return "<empty>"
}

// sortedFields возвращает имена полей записи в стабильном порядке
func sortedFields(record *models.EntityRecord) []string {
	fields := make([]string, 0, len(record.Fields))
	for name := range record.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}
