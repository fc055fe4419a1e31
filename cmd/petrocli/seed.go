package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jclennon97/bustub-jc/index"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "insert a run of sequential keys into the index",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		eng, err := openEngine(cfg)
		if err != nil {
			log.WithError(err).Fatal("opening engine")
		}
		defer eng.close()

		tree, err := eng.openIndex(cfg)
		if err != nil {
			log.WithError(err).Fatal("opening index")
		}

		for i := int64(0); i < int64(seedCount); i++ {
			rid := index.RID{PageId: i / 32, SlotNum: int32(i % 32)}
			inserted, err := tree.Insert(i, rid)
			if err != nil {
				log.WithError(err).Fatalf("inserting key %d", i)
			}
			if !inserted {
				log.Warnf("key %d already present, skipped", i)
			}
		}

		rootId, err := tree.GetRootPageId()
		if err != nil {
			log.WithError(err).Fatal("reading root page id")
		}
		fmt.Printf("seeded %d keys into %s, root page id %d\n", seedCount, cfg.DBFile, rootId)
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of sequential integer keys to insert")
}
