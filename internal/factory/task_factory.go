package factory

import (
	"NetReplay/internal/config"
	"NetReplay/internal/model"
	"fmt"
	"log"
)

// TaskGroup bundles a set of aggregation tasks with the writers that persist
// their snapshots.
type TaskGroup struct {
	Tasks   []model.Task
	Writers []model.Writer
}

// TaskFactory builds a group of tasks and writers from the configuration.
type TaskFactory func(cfg *config.Config) (*TaskGroup, error)

var registry = make(map[string]TaskFactory)

// RegisterAggregator registers a factory function for an aggregator type.
// Implementations call it from init().
func RegisterAggregator(name string, factory TaskFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("aggregator type '%s' already registered", name))
	}
	registry[name] = factory
}

// Create instantiates one TaskGroup per aggregator type enabled in the config.
func Create(cfg *config.Config) ([]TaskGroup, error) {
	var taskGroups []TaskGroup

	for _, aggType := range cfg.Aggregator.Types {
		log.Printf("Creating tasks and writers for aggregator type: '%s'\n", aggType)

		factory, ok := registry[aggType]
		if !ok {
			return nil, fmt.Errorf("unknown aggregator type: '%s'", aggType)
		}

		group, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("error creating aggregator type '%s': %w", aggType, err)
		}

		taskGroups = append(taskGroups, *group)
	}

	return taskGroups, nil
}
