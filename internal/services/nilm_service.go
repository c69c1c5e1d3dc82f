package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/aggregator"
	"github.com/zwangde/pulsed-power-ml/internal/models"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

// Store persists what the NILM service produces
type Store interface {
	UpsertSensor(ctx context.Context, sensor *models.Sensor) error
	SaveStateSnapshot(ctx context.Context, usage *models.PowerUsage) error
	SaveSwitchEvent(ctx context.Context, event *models.SwitchEvent) error
	SaveValidation(ctx context.Context, record *models.ValidationRecord) error
}

// DetectorFactory builds the detector of a sensor seen for the first time
type DetectorFactory func(sensorID string) (*nilm.Detector, error)

// NILMServiceConfig holds configuration for the NILM service
type NILMServiceConfig struct {
	DataPointChannelSize int
	StateChannelSize     int
	PublishTimeout       time.Duration // wait on a full state channel before dropping
	SnapshotInterval     time.Duration // minimum time between persisted snapshots of a sensor
	RegisterInterval     time.Duration // how often a sensor's registry row is refreshed
	WriteTimeout         time.Duration // per store write
}

// DefaultNILMServiceConfig returns default configuration
func DefaultNILMServiceConfig() NILMServiceConfig {
	return NILMServiceConfig{
		DataPointChannelSize: 256,
		StateChannelSize:     64,
		PublishTimeout:       time.Second,
		SnapshotInterval:     10 * time.Second,
		RegisterInterval:     time.Minute,
		WriteTimeout:         5 * time.Second,
	}
}

type sensorStream struct {
	detector       *nilm.Detector
	info           models.Sensor
	latest         *models.PowerUsage
	lastSnapshot   time.Time
	lastRegistered time.Time
	logger         *log.Entry
}

// NILMService runs one detector per sensor over the incoming data points,
// keeps energy usage totals and hands state snapshots to the publisher and
// the store. Data points are processed by a single goroutine in arrival order.
type NILMService struct {
	store   Store
	factory DetectorFactory
	names   []string
	usage   *aggregator.UsageAggregator
	config  NILMServiceConfig

	// Input channel from the MQTT subscriber
	DataPointChan chan *models.DataPoint
	// Output channel to the MQTT publisher
	StateChan chan *models.PowerUsage

	mu      sync.RWMutex
	sensors map[string]*sensorStream
}

// NewNILMService creates a new NILM service. names labels the state vector
// slots (appliances then unknown); store may be nil.
func NewNILMService(
	store Store,
	factory DetectorFactory,
	names []string,
	usage *aggregator.UsageAggregator,
	config NILMServiceConfig,
) *NILMService {
	return &NILMService{
		store:         store,
		factory:       factory,
		names:         names,
		usage:         usage,
		config:        config,
		DataPointChan: make(chan *models.DataPoint, config.DataPointChannelSize),
		StateChan:     make(chan *models.PowerUsage, config.StateChannelSize),
		sensors:       make(map[string]*sensorStream),
	}
}

// Start processes data points until the context is cancelled or the input
// channel is closed, then closes StateChan.
func (s *NILMService) Start(ctx context.Context) {
	log.Println("NILMService: Starting...")
	defer func() {
		close(s.StateChan)
		log.Println("NILMService: Shutdown complete")
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("NILMService: Shutting down...")
			return
		case point, ok := <-s.DataPointChan:
			if !ok {
				log.Println("NILMService: Data point channel closed, shutting down...")
				return
			}
			if err := s.process(ctx, point); err != nil {
				log.WithField("sensor", point.SensorID).Warnf("NILMService: %v", err)
			}
		}
	}
}

// process runs one data point through its sensor's detector
func (s *NILMService) process(ctx context.Context, point *models.DataPoint) error {
	stream, err := s.stream(point.SensorID, point.Timestamp)
	if err != nil {
		return err
	}

	in := nilm.Sample(point.Values)
	if point.Reset {
		in = nilm.ResetSignal()
	}
	frame, err := stream.detector.Step(in)
	if err != nil {
		return fmt.Errorf("failed to process data point: %w", err)
	}

	usage := s.usage.Update(point.SensorID, point.Timestamp, frame.State)
	snapshot := &models.PowerUsage{
		SensorID:   point.SensorID,
		Names:      s.names,
		Values:     frame.State,
		Timestamp:  point.Timestamp.UnixMilli(),
		DayUsage:   usage.Day,
		WeekUsage:  usage.Week,
		MonthUsage: usage.Month,
	}

	s.mu.Lock()
	stream.info.Frames++
	stream.info.LastSeen = point.Timestamp
	stream.latest = snapshot
	info := stream.info
	s.mu.Unlock()

	s.publish(snapshot)

	if s.store == nil {
		return nil
	}

	if point.Timestamp.Sub(stream.lastRegistered) >= s.config.RegisterInterval {
		s.write(ctx, stream.logger, "register sensor", func(ctx context.Context) error {
			return s.store.UpsertSensor(ctx, &info)
		})
		stream.lastRegistered = point.Timestamp
	}

	if record := s.switchEvent(point, frame); record != nil {
		s.write(ctx, stream.logger, "save switch event", func(ctx context.Context) error {
			return s.store.SaveSwitchEvent(ctx, record)
		})
	}

	if frame.Verdict != nil {
		record := s.validationRecord(point, frame.Verdict)
		s.write(ctx, stream.logger, "save validation", func(ctx context.Context) error {
			return s.store.SaveValidation(ctx, record)
		})
	}

	changed := frame.Reset || frame.Applied || (frame.Verdict != nil && !frame.Verdict.Accepted)
	if changed || point.Timestamp.Sub(stream.lastSnapshot) >= s.config.SnapshotInterval {
		s.write(ctx, stream.logger, "save state snapshot", func(ctx context.Context) error {
			return s.store.SaveStateSnapshot(ctx, snapshot)
		})
		stream.lastSnapshot = point.Timestamp
	}

	return nil
}

// stream returns the sensor's stream, building its detector on first use
func (s *NILMService) stream(sensorID string, ts time.Time) (*sensorStream, error) {
	s.mu.RLock()
	stream, exists := s.sensors[sensorID]
	s.mu.RUnlock()
	if exists {
		return stream, nil
	}

	detector, err := s.factory(sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector for %s: %w", sensorID, err)
	}

	stream = &sensorStream{
		detector: detector,
		info: models.Sensor{
			SensorID:     sensorID,
			RegisteredAt: ts,
			LastSeen:     ts,
		},
		logger: log.WithField("sensor", sensorID),
	}

	s.mu.Lock()
	s.sensors[sensorID] = stream
	s.mu.Unlock()

	stream.logger.Info("NILMService: New sensor registered")
	return stream, nil
}

// write runs one store call with the write timeout. Failures are logged and
// do not stop processing.
func (s *NILMService) write(ctx context.Context, logger *log.Entry, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Errorf("NILMService: failed to %s: %v", what, err)
	}
}

// publish hands the snapshot to the publisher, dropping it if the channel stays full
func (s *NILMService) publish(snapshot *models.PowerUsage) {
	timer := time.NewTimer(s.config.PublishTimeout)
	defer timer.Stop()

	select {
	case s.StateChan <- snapshot:
	case <-timer.C:
		log.WithField("sensor", snapshot.SensorID).Warn("NILMService: State channel full, dropping snapshot")
	}
}

func (s *NILMService) applianceName(i int) string {
	if i >= 0 && i < len(s.names)-1 {
		return s.names[i]
	}
	return ""
}

// switchEvent builds the record of a classified event, nil if the frame
// classified nothing
func (s *NILMService) switchEvent(point *models.DataPoint, frame nilm.Frame) *models.SwitchEvent {
	if frame.Classification == nil || frame.Event == nil {
		return nil
	}

	event := &models.SwitchEvent{
		EventID:       uuid.NewString(),
		Timestamp:     point.Timestamp,
		SensorID:      point.SensorID,
		Kind:          frame.Event.Kind.String(),
		ApplianceID:   frame.Event.Appliance,
		ApplianceName: s.applianceName(frame.Event.Appliance),
		Distances:     frame.Classification.Distances,
		ApparentPower: frame.ApparentPower,
	}

	switch {
	case frame.Suppressed != nil:
		event.Outcome = models.OutcomeSuppressed
		event.Reason = frame.Suppressed.String()
	case frame.Rejected != nil:
		event.Outcome = models.OutcomeRejected
		event.Reason = frame.Rejected.Error()
	case frame.Applied:
		event.Outcome = models.OutcomeApplied
	default:
		event.Outcome = models.OutcomeIgnored
	}
	return event
}

func (s *NILMService) validationRecord(point *models.DataPoint, v *nilm.Verdict) *models.ValidationRecord {
	return &models.ValidationRecord{
		ValidationID:  uuid.NewString(),
		Timestamp:     point.Timestamp,
		SensorID:      point.SensorID,
		Kind:          v.Event.Kind.String(),
		ApplianceID:   v.Event.Appliance,
		ApplianceName: s.applianceName(v.Event.Appliance),
		PowerBefore:   v.PowerBefore,
		PowerAfter:    v.PowerAfter,
		Delta:         v.Delta,
		Expected:      v.Expected,
		Accepted:      v.Accepted,
	}
}

// LatestState returns the last snapshot of a sensor
func (s *NILMService) LatestState(sensorID string) (*models.PowerUsage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.sensors[sensorID]
	if !exists || stream.latest == nil {
		return nil, false
	}
	latest := *stream.latest
	return &latest, true
}

// Sensors returns all known sensors sorted by ID
func (s *NILMService) Sensors() []models.Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensors := make([]models.Sensor, 0, len(s.sensors))
	for _, stream := range s.sensors {
		sensors = append(sensors, stream.info)
	}
	sort.Slice(sensors, func(i, j int) bool {
		return sensors[i].SensorID < sensors[j].SensorID
	})
	return sensors
}
