package service

import (
	"go.uber.org/zap"

	"security-service/internal/bucketing"
)

// ServiceFactory creates and manages the abuse-detection service instances,
// wiring the recorder → evaluator → escalator chain once per process.
type ServiceFactory struct {
	eventStore   EventStore
	eventCounter EventCounter
	breachStore  BreachStore
	claims       WindowClaimer
	publisher    BreachPublisher
	indexer      EventIndexer
	buckets      *bucketing.Manager
	logger       *zap.Logger

	recorder  *Recorder
	evaluator *AnomalyEvaluator
	escalator *BreachEscalator
}

func NewServiceFactory(
	eventStore EventStore,
	eventCounter EventCounter,
	breachStore BreachStore,
	claims WindowClaimer,
	publisher BreachPublisher,
	indexer EventIndexer,
	buckets *bucketing.Manager,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		eventStore:   eventStore,
		eventCounter: eventCounter,
		breachStore:  breachStore,
		claims:       claims,
		publisher:    publisher,
		indexer:      indexer,
		buckets:      buckets,
		logger:       logger,
	}
}

// Escalator returns the breach escalator instance (singleton)
func (f *ServiceFactory) Escalator() *BreachEscalator {
	if f.escalator == nil {
		f.escalator = NewBreachEscalator(f.breachStore, f.publisher, f.logger)
	}
	return f.escalator
}

// Evaluator returns the anomaly evaluator instance (singleton)
func (f *ServiceFactory) Evaluator() *AnomalyEvaluator {
	if f.evaluator == nil {
		f.evaluator = NewAnomalyEvaluator(f.eventCounter, f.claims, f.Escalator(), f.logger)
	}
	return f.evaluator
}

// Recorder returns the security event recorder instance (singleton)
func (f *ServiceFactory) Recorder() *Recorder {
	if f.recorder == nil {
		f.recorder = NewRecorder(f.eventStore, f.indexer, f.Evaluator(), f.buckets, f.logger)
	}
	return f.recorder
}
