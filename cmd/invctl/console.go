package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/sirupsen/logrus"
)

// console holds the inventory the commands operate on. It is opened lazily
// so a script run shares one inventory across all of its lines.
type console struct {
	out io.Writer
	log *logrus.Logger

	dbPath      string
	catalogPath string
	owner       string
	verbose     bool

	cat   *inventory.Registry
	inv   *inventory.Inventory
	store store.Store
}

func newConsole(out, errOut io.Writer) *console {
	log := logrus.New()
	log.SetOutput(errOut)
	log.SetLevel(logrus.WarnLevel)
	return &console{out: out, log: log, owner: "console"}
}

func (c *console) open(ctx context.Context) error {
	if c.inv != nil {
		return nil
	}
	if c.verbose {
		c.log.SetLevel(logrus.DebugLevel)
	}

	cat := inventory.SampleCatalog()
	if c.catalogPath != "" {
		loaded, err := inventory.LoadRegistryFile(c.catalogPath)
		if err != nil {
			return err
		}
		cat = loaded
	}
	c.cat = cat

	opts := []inventory.Option{inventory.WithLogger(c.log)}
	owner := inventory.OwnerID(c.owner)
	if c.dbPath == "" {
		c.inv = inventory.New("inv-"+c.owner, owner, cat, opts...)
		return nil
	}

	codec, err := store.NewCodec("default")
	if err != nil {
		return err
	}
	st, err := store.OpenSQLite(c.dbPath, codec)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.dbPath, err)
	}
	c.store = st

	snap, err := st.Load(ctx, owner)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.inv = inventory.New("inv-"+c.owner, owner, cat, opts...)
	case err != nil:
		return err
	default:
		inv, err := inventory.Restore(snap, cat, opts...)
		if err != nil {
			return fmt.Errorf("failed to restore inventory: %w", err)
		}
		c.inv = inv
	}
	return nil
}

// save persists the inventory when a database is in use.
func (c *console) save(ctx context.Context) error {
	if c.store == nil || c.inv == nil {
		return nil
	}
	return c.store.Save(ctx, c.inv.Snapshot())
}

func (c *console) close() {
	if c.inv != nil {
		c.inv.Close()
	}
	if c.store != nil {
		c.store.Close()
		c.store = nil
	}
}

// item resolves an item argument given either as an item id or as its
// numeric registry id.
func (c *console) item(arg string) (inventory.ItemID, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return inventory.ItemID(arg), nil
	}
	d, ok := c.cat.LookupByRegistryID(inventory.RegistryID(n))
	if !ok {
		return "", fmt.Errorf("%w: registry id %d", inventory.ErrNotFound, n)
	}
	return d.ID, nil
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// printDiff reports what the last command committed.
func (c *console) printDiff() {
	d := c.inv.TakeDiff()
	if d.Empty() {
		c.printf("no changes (rev %d)\n", d.Revision)
		return
	}
	for _, cd := range d.Containers {
		c.printf("rev %d %s: +%d ~%d -%d", d.Revision, cd.Container, len(cd.Added), len(cd.Changed), len(cd.Removed))
		if cd.Meta != nil {
			c.printf(" meta")
		}
		c.printf("\n")
	}
}
