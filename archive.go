package rewind

import (
	"fmt"
	"maps"
	"slices"

	"github.com/AnatoleLucet/rewind/internal"
	"github.com/AnatoleLucet/rewind/internal/archive"
)

type ArchivedCheckpoint = archive.Record

// Archive stores the named values of a checkpoint in the archive configured
// under archive.path, so a later run can load them with LoadArchived.
func (c *Core) Archive(name string) (ArchivedCheckpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.archive == nil {
		return ArchivedCheckpoint{}, ErrNoArchive
	}

	v, ok := c.history.Lookup(name)
	if !ok {
		return ArchivedCheckpoint{}, &UnknownCheckpointError{Name: name}
	}

	rec, err := c.archive.Save(archive.Record{
		Core:      c.id,
		Name:      name,
		Seq:       v.Seq(),
		CreatedAt: v.CreatedAt(),
		Values:    v.Values(),
	})
	if err != nil {
		return ArchivedCheckpoint{}, err
	}

	c.logger.Info("checkpoint archived", "name", name, "seq", v.Seq(), "record", rec.ID, "values", len(rec.Values))
	return rec, nil
}

// ArchivedCheckpoints lists the archive in name order.
func (c *Core) ArchivedCheckpoints() ([]ArchivedCheckpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.archive == nil {
		return nil, ErrNoArchive
	}
	return c.archive.List()
}

// LoadArchived writes the cell values of an archived checkpoint back into
// the live cells of the same names, in one batch. Computed values are
// skipped since they follow from the cells. Every archived name must be
// declared in this core, otherwise nothing is written.
func (c *Core) LoadArchived(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	if c.archive == nil {
		return ErrNoArchive
	}
	if c.rt.InBody() {
		return ErrBusy
	}

	rec, err := c.archive.Load(name)
	if err != nil {
		return err
	}

	var cells []ID
	names := slices.Sorted(maps.Keys(rec.Values))
	for _, n := range names {
		id, ok := c.rt.Lookup(n)
		if !ok {
			err := &CorruptVersionError{
				Reason: fmt.Sprintf("archived checkpoint %q holds %q, which is not declared", name, n),
			}
			c.logger.Error("archived checkpoint rejected", "name", name, "error", err)
			return err
		}

		def, _ := c.rt.Def(id)
		switch def.Kind {
		case internal.KindCell:
			cells = append(cells, id)
		case internal.KindComputed:
		default:
			err := &CorruptVersionError{
				Reason: fmt.Sprintf("archived checkpoint %q holds a value for %s %q", name, def.Kind, n),
			}
			c.logger.Error("archived checkpoint rejected", "name", name, "error", err)
			return err
		}
	}

	err = c.rt.Batch(func() error {
		for _, id := range cells {
			def, _ := c.rt.Def(id)
			if err := c.rt.Write(id, rec.Values[def.Name]); err != nil {
				return err
			}
		}
		return nil
	})

	c.logger.Info("archived checkpoint loaded", "name", name, "record", rec.ID, "cells", len(cells))
	return err
}
