package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jclennon97/bustub-jc/storage/disk"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "print the index's root page id and walk its keys in order",
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

		rootId, err := tree.GetRootPageId()
		if err != nil {
			log.WithError(err).Fatal("reading root page id")
		}
		if rootId == disk.INVALID_PAGE_ID {
			fmt.Println("index is empty")
			return
		}
		fmt.Printf("root page id: %d\n", rootId)

		iter, err := tree.Begin()
		if err != nil {
			log.WithError(err).Fatal("starting iterator")
		}

		count := 0
		for !iter.IsEnd() {
			key, rid, err := iter.Next()
			if err != nil {
				log.WithError(err).Fatal("iterating index")
			}
			fmt.Printf("%d -> page=%d slot=%d\n", key, rid.PageId, rid.SlotNum)
			count++
		}
		fmt.Printf("%d keys total\n", count)
	},
}
