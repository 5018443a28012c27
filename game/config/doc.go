// Package config manages level collections ("datasets") stored on disk.
//
// A collection is a JSON or YAML file in the config directory:
//
//	name: microsokoban
//	description: Small hand-made training levels
//	mode: forward
//	max_steps: 120
//	levels:
//	  - id: 1
//	    layout:
//	      - "######"
//	      - "#@$ .#"
//	      - "######"
//
// The file name without extension is the collection's id. Ids are
// case-insensitive. Loaded collections are cached; Watch refreshes the cache
// when files change.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//	levels, err := manager.LoadConfig("xsokoban")
//	go manager.Watch(ctx, config.DefaultWatchDebounce, nil)
package config
