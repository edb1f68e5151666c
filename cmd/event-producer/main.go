package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// ReadingLogSubmission represents a reading-log message
type ReadingLogSubmission struct {
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	Date      time.Time `json:"date"`
	StartPage int       `json:"start_page,omitempty"`
	EndPage   int       `json:"end_page,omitempty"`
	PagesRead int       `json:"pages_read"`
}

var readerPrefixes = []string{
	"avid", "casual", "night", "morning", "binge", "slow", "speed", "quiet",
	"curious", "devoted", "weekend", "commuter", "bedtime", "serial", "eager",
}

func readerID(idx int) string {
	prefixIdx := idx % len(readerPrefixes)
	suffix := idx/len(readerPrefixes) + 1
	return fmt.Sprintf("%s-reader-%d", readerPrefixes[prefixIdx], suffix)
}

func bookID(idx int) string {
	return fmt.Sprintf("book-%03d", idx+1)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "reading-logs", "Kafka topic")
	totalReaders := flag.Int("readers", 500, "Number of simulated readers")
	totalBooks := flag.Int("books", 100, "Number of books readers pick from")
	logsPerSecond := flag.Int("rate", 50, "Reading logs per second")
	backfillDays := flag.Int("backfill", 0, "Days of history to backfill per reader")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Reading log producer")
	fmt.Printf("  brokers:   %s\n", *brokers)
	fmt.Printf("  topic:     %s\n", *topic)
	fmt.Printf("  readers:   %d\n", *totalReaders)
	fmt.Printf("  rate:      %d logs/sec\n", *logsPerSecond)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Messages are keyed by user so each reader's logs stay in order on
	// one partition, which the streak machine depends on.
	sendLog := func(sub ReadingLogSubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(sub.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	randomLog := func(readerIdx int, date time.Time) ReadingLogSubmission {
		start := rand.Intn(300) + 1
		pages := rand.Intn(40) + 5
		return ReadingLogSubmission{
			UserID:    readerID(readerIdx),
			BookID:    bookID(rand.Intn(*totalBooks)),
			Date:      date,
			StartPage: start,
			EndPage:   start + pages,
			PagesRead: pages,
		}
	}

	// Backfill per-reader history so streaks and period rankings have
	// something to chew on immediately
	if *backfillDays > 0 {
		fmt.Printf("Backfilling %d days of history for %d readers...\n", *backfillDays, *totalReaders)
		for i := 0; i < *totalReaders; i++ {
			for d := *backfillDays; d >= 1; d-- {
				// Roughly two thirds of readers kept their streak on any given day
				if rand.Intn(100) < 66 {
					sendLog(randomLog(i, time.Now().AddDate(0, 0, -d)))
				}
			}
		}
		fmt.Printf("Backfill queued\n\n")
	}

	fmt.Printf("Producing %d logs/sec, press Ctrl+C to stop\n\n", *logsPerSecond)

	interval := time.Second / time.Duration(*logsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var produced int64

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nDone. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			// A small set of dedicated readers logs most of the sessions
			var readerIdx int
			if rand.Intn(100) < 60 {
				readerIdx = rand.Intn(*totalReaders / 10)
			} else {
				readerIdx = rand.Intn(*totalReaders)
			}

			sendLog(randomLog(readerIdx, time.Now()))
			atomic.AddInt64(&produced, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&produced),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
