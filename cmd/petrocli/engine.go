package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/Jclennon97/bustub-jc/buffer"
	"github.com/Jclennon97/bustub-jc/config"
	"github.com/Jclennon97/bustub-jc/index"
	"github.com/Jclennon97/bustub-jc/storage/disk"
)

// engine bundles the pieces a CLI command needs: the disk-backed buffer
// pool and the one index it seeds/inspects.
type engine struct {
	bpm  *buffer.BufferpoolManager
	file *os.File
}

func openEngine(cfg config.Config) (*engine, error) {
	exists := true
	if _, err := os.Stat(cfg.DBFile); os.IsNotExist(err) {
		exists = false
	}

	file, err := os.OpenFile(cfg.DBFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file %s", cfg.DBFile)
	}
	if !exists {
		if err := os.Truncate(file.Name(), disk.PAGE_SIZE); err != nil {
			return nil, errors.Wrap(err, "sizing new db file")
		}
	}

	diskMgr := disk.NewDiskManager(file)
	scheduler := disk.NewDiskScheduler(diskMgr)
	replacer := buffer.NewLrukReplacer(cfg.Buffer.PoolSize, cfg.Buffer.LRUK)
	bpm := buffer.NewBufferpoolManager(cfg.Buffer.PoolSize, replacer, scheduler)

	return &engine{bpm: bpm, file: file}, nil
}

func (e *engine) close() {
	e.bpm.FlushAllPages()
	_ = e.file.Close()
}

func (e *engine) openIndex(cfg config.Config) (*index.BPlusTree[int64, index.RID], error) {
	return index.NewBPlusTree[int64, index.RID]("petrocli", e.bpm, index.HeaderPageID, cfg.Index.LeafMaxSize, cfg.Index.InternalMaxSize)
}
