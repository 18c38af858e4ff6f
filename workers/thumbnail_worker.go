package workers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/helio-ops/solsyncbackend/config"
	"github.com/helio-ops/solsyncbackend/repository"
)

type ThumbnailJob struct {
	LocalImageID  uint
	FullImagePath string
}

// ThumbnailProcessor generates preview thumbnails for captured evidence
// photos on a small worker pool so the capture request never waits on image
// decoding.
type ThumbnailProcessor struct {
	JobQueue    chan ThumbnailJob
	Config      config.Config
	LocalImages repository.LocalImageRepositoryInterface
	Wg          sync.WaitGroup
	StopChan    chan struct{}
	Pending     map[uint]bool
	Mutex       sync.Mutex
}

func NewThumbnailProcessor(cfg config.Config, localImages repository.LocalImageRepositoryInterface, queueSize, numWorkers int) *ThumbnailProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &ThumbnailProcessor{
		JobQueue:    make(chan ThumbnailJob, queueSize),
		Config:      cfg,
		LocalImages: localImages,
		StopChan:    make(chan struct{}),
		Pending:     make(map[uint]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d thumbnail worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (tp *ThumbnailProcessor) worker(id int) {
	defer tp.Wg.Done()

	log.Printf("Thumbnail worker %d started", id)
	for {
		select {
		case job, ok := <-tp.JobQueue:
			if !ok {
				log.Printf("Thumbnail worker %d stopping: Job queue closed", id)
				return
			}
			tp.processJob(id, job)
			tp.Mutex.Lock()
			delete(tp.Pending, job.LocalImageID)
			tp.Mutex.Unlock()

		case <-tp.StopChan:
			log.Printf("Thumbnail worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (tp *ThumbnailProcessor) processJob(id int, job ThumbnailJob) {
	if _, statErr := os.Stat(job.FullImagePath); os.IsNotExist(statErr) {
		log.Printf("Worker %d: Skipping thumbnail for image %d: original file not found", id, job.LocalImageID)
		return
	}

	thumbPath, err := GenerateThumbnail(job.FullImagePath, tp.Config.ThumbnailsPath, tp.Config.ThumbnailMaxSize)
	if err != nil {
		log.Printf("Worker %d: ERROR generating thumbnail for image %d: %v", id, job.LocalImageID, err)
		return
	}

	relThumb, err := filepath.Rel(tp.Config.MediaStoragePath, thumbPath)
	if err != nil {
		relThumb = thumbPath
	}
	relThumb = filepath.ToSlash(relThumb)

	if err := tp.LocalImages.UpdateThumbnailPath(job.LocalImageID, &relThumb); err != nil {
		log.Printf("Worker %d: ERROR updating thumbnail path for image %d: %v", id, job.LocalImageID, err)
		return
	}
	log.Printf("Worker %d: Generated thumbnail for image %d", id, job.LocalImageID)
}

// QueueJob queues a thumbnail task if not already pending
func (tp *ThumbnailProcessor) QueueJob(job ThumbnailJob) bool {
	tp.Mutex.Lock()
	if tp.Pending[job.LocalImageID] {
		tp.Mutex.Unlock()
		return false
	}
	tp.Pending[job.LocalImageID] = true
	tp.Mutex.Unlock()

	select {
	case tp.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: Thumbnail job queue full. Failed to queue image %d", job.LocalImageID)
		tp.Mutex.Lock()
		delete(tp.Pending, job.LocalImageID)
		tp.Mutex.Unlock()
		return false
	}
}

func (tp *ThumbnailProcessor) Stop() {
	log.Println("Stopping thumbnail workers...")
	close(tp.StopChan)
	tp.Wg.Wait()
	log.Println("All thumbnail workers stopped")
}

// GenerateThumbnail creates a thumbnail with a UUID filename and returns the
// full path where it was saved.
func GenerateThumbnail(originalImagePath, thumbnailDir string, maxSize int) (string, error) {
	if err := os.MkdirAll(thumbnailDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory %s: %w", thumbnailDir, err)
	}

	img, err := imaging.Open(originalImagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", originalImagePath, err)
	}

	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	thumbUUID, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID for thumbnail: %w", err)
	}
	thumbFilename := thumbUUID.String() + ".jpg"
	thumbnailSavePath := filepath.Join(thumbnailDir, thumbFilename)

	if err := imaging.Save(thumb, thumbnailSavePath, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("failed to save thumbnail to %s: %w", thumbnailSavePath, err)
	}

	return thumbnailSavePath, nil
}
