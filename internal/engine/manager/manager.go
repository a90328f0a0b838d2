package manager

import (
	"NetReplay/internal/config"
	_ "NetReplay/internal/engine/impl/exact"  // Registers the exact aggregator
	_ "NetReplay/internal/engine/impl/sketch" // Registers the sketch aggregator
	"NetReplay/internal/factory"
	"NetReplay/internal/model"
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager orchestrates a set of aggregation tasks and their writers. Packets
// arrive on the input channel, fan out to every task via a worker pool, and
// each writer snapshots its task group on its own interval.
type Manager struct {
	taskGroups []factory.TaskGroup

	packetChannel chan *model.PacketInfo
	numWorkers    int
	workerWg      sync.WaitGroup

	period        time.Duration // Global measurement period
	done          chan struct{}
	snapshotterWg sync.WaitGroup
	resetterWg    sync.WaitGroup
}

// NewManager creates a new Manager from the aggregator configuration.
func NewManager(cfg *config.Config) (*Manager, error) {
	taskGroups, err := factory.Create(cfg)
	if err != nil {
		return nil, err
	}

	period, err := time.ParseDuration(cfg.Aggregator.Period)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregator period: %w", err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("aggregator period must be a positive duration")
	}

	return &Manager{
		taskGroups:    taskGroups,
		period:        period,
		done:          make(chan struct{}),
		packetChannel: make(chan *model.PacketInfo, cfg.Aggregator.SizeOfPacketChannel),
		numWorkers:    cfg.Aggregator.NumWorkers,
	}, nil
}

// Start begins the packet processing workers, snapshotters, and resetter.
func (m *Manager) Start() {
	// One dedicated snapshotter per writer, scoped to its group's tasks.
	for _, group := range m.taskGroups {
		for _, writer := range group.Writers {
			m.snapshotterWg.Add(1)
			go m.runSnapshotter(writer, group.Tasks)
			log.Printf("Started snapshotter for a writer with interval %s, handling %d tasks.", writer.GetInterval(), len(group.Tasks))
		}
	}

	m.resetterWg.Add(1)
	go m.runResetter()
	log.Printf("Started global resetter with period %s", m.period)

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker()
	}
	log.Printf("Manager started with %d workers.", m.numWorkers)
}

// runSnapshotter runs the snapshot loop for a single writer and its tasks.
func (m *Manager) runSnapshotter(writer model.Writer, tasks []model.Task) {
	defer m.snapshotterWg.Done()
	interval := writer.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer, snapshotter will not run.", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshotForWriter(writer, tasks)
		case <-m.done:
			// Final snapshot so buffered counts survive shutdown.
			m.takeSnapshotForWriter(writer, tasks)
			return
		}
	}
}

// takeSnapshotForWriter snapshots every task in the group and hands the
// results to the writer.
func (m *Manager) takeSnapshotForWriter(writer model.Writer, tasks []model.Task) {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	log.Printf("Taking snapshot for writer at %s for %d tasks.", timestamp, len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for _, task := range tasks {
		go func(t model.Task) {
			defer wg.Done()
			snapshotData := t.Snapshot()
			if err := writer.Write(snapshotData, timestamp); err != nil {
				log.Printf("Error writing snapshot for task %s: %v", t.Name(), err)
			}
		}(task)
	}

	wg.Wait()
}

// runResetter resets all tasks at the start of each measurement period.
func (m *Manager) runResetter() {
	defer m.resetterWg.Done()
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.resetAllTasks()
		case <-m.done:
			log.Println("Resetter shutting down.")
			return
		}
	}
}

func (m *Manager) resetAllTasks() {
	log.Printf("Resetting all tasks for new measurement period at %s", time.Now().Format("2006-01-02_15-04-05"))
	var wg sync.WaitGroup
	for _, group := range m.taskGroups {
		wg.Add(len(group.Tasks))
		for _, task := range group.Tasks {
			go func(t model.Task) {
				defer wg.Done()
				t.Reset()
			}(task)
		}
	}
	wg.Wait()
}

// Stop gracefully shuts down the manager. Buffered packets are drained, a
// final snapshot is taken for every writer, then all goroutines exit.
func (m *Manager) Stop() {
	log.Println("Manager stopping...")
	close(m.packetChannel)

	log.Println("Waiting for workers to finish...")
	m.workerWg.Wait()

	close(m.done)
	log.Println("Waiting for snapshotters and resetter to finish...")
	m.snapshotterWg.Wait()
	m.resetterWg.Wait()

	log.Println("Manager stopped.")
}

func (m *Manager) worker() {
	defer m.workerWg.Done()
	for info := range m.packetChannel {
		for _, group := range m.taskGroups {
			for _, task := range group.Tasks {
				task.ProcessPacket(info)
			}
		}
	}
}

// InputChannel returns the channel packets should be submitted on.
func (m *Manager) InputChannel() chan<- *model.PacketInfo {
	return m.packetChannel
}
