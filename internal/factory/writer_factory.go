package factory

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/model"
	"fmt"
	"log"
)

// WriterFactory defines a function that creates a writer from its config definition.
type WriterFactory func(def config.WriterDef) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// CreateWriters creates every enabled writer defined in the config.
// A writer that fails to initialize aborts startup.
func CreateWriters(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating writer of type: '%s'\n", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		writer, err := factory(def)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, writer)
	}

	if len(writers) == 0 {
		return nil, fmt.Errorf("no enabled writers in config")
	}
	return writers, nil
}

func closeAll(writers []model.Writer) {
	for _, w := range writers {
		w.Close()
	}
}
