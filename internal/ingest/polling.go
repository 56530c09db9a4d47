package ingest

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Mediadesk/internal/event"
	"github.com/hbomb79/Mediadesk/pkg/logger"
)

// recursivelyWalkFileSystem will walk the file system, starting at the directory provided,
// and construct a map of all the files inside (including any inside of nested directories).
// Directories in 'excluded' are not entered, and files whose paths are included in the 'known'
// map or whose names match the blacklist will NOT be included in the result.
// The key of the returned map is the path, and the value contains the FileInfo
func recursivelyWalkFileSystem(rootDirPath string, excluded map[string]bool, known map[string]bool, blacklist []*regexp.Regexp) (map[string]fs.FileInfo, error) {
	foundItems := make(map[string]fs.FileInfo, 0)
	err := filepath.WalkDir(rootDirPath, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if dir.IsDir() {
			if excluded[path] {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := known[path]; ok || isBlacklisted(dir.Name(), blacklist) {
			return nil
		}

		fileInfo, err := dir.Info()
		if err != nil {
			return err
		}

		foundItems[path] = fileInfo
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk file system: %w", err)
	}

	return foundItems, nil
}

func isBlacklisted(name string, blacklist []*regexp.Regexp) bool {
	for _, expr := range blacklist {
		if expr.MatchString(name) {
			return true
		}
	}

	return false
}

// DiscoverNewFiles will scan the ingest directory and check for files
// that need to be ingested (as in no asset for the file already exists,
// and no current item in this service represents this path).
//
// Note: This function will take ownership of the mutex, and releases it when returning
func (service *Service) DiscoverNewFiles() {
	service.Lock()
	defer service.unlockAndFlush()

	knownPaths, err := service.store.MediaRelativePaths()
	if err != nil {
		log.Emit(logger.ERROR, "Unable to discover new files, known paths could not be fetched: %v\n", err)
		return
	}

	lookup := make(map[string]bool, len(knownPaths)+len(service.items)+len(service.dismissed))
	for _, path := range knownPaths {
		lookup[service.files.ToAbsolute(path)] = true
	}
	for _, item := range service.items {
		lookup[item.Path] = true
	}
	for path := range service.dismissed {
		lookup[path] = true
	}

	newItems, err := recursivelyWalkFileSystem(service.ingestPath, service.excluded, lookup, service.blacklist)
	if err != nil {
		log.Emit(logger.ERROR, "File system polling failed: %v\n", err)
		return
	}

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	dirty := false
	for itemPath, itemInfo := range newItems {
		itemID := uuid.New()
		timeDiff := time.Since(itemInfo.ModTime())

		itemState := ImportHold
		if timeDiff > minModtimeAge {
			dirty = true
			itemState = Idle
		}

		service.items = append(service.items, &IngestItem{ID: itemID, Path: itemPath, State: itemState})
		if itemState == ImportHold {
			service.scheduleImportHoldTimer(itemID, minModtimeAge-timeDiff)
		}

		log.Emit(logger.DEBUG, "Discovered %s (%s)\n", itemPath, itemState)
		service.queueEvent(event.INGEST_UPDATE, itemID)
	}

	if dirty {
		service.wakeupWorkerPool()
	}
}

// evaluateItemHold accepts the ID of an item that is on IMPORT_HOLD,
// and checks its modtime to see if the item can be moved on to
// the 'IDLE' state.
// If the item with the ID provided no longer exists, the method is a NO-OP.
// If the item exists, but its source file no longer exists, the item is removed
// from the services state.
// If the item exists and its source still does not meet modtime requirements, then
// a new timer will be scheduled to re-evaluate the item hold.
//
// Note: this function takes ownership of the mutex, and releases it when returning
func (service *Service) evaluateItemHold(id uuid.UUID) {
	service.Lock()
	defer service.unlockAndFlush()

	item := service.findItem(id)
	if item == nil || item.State != ImportHold {
		return
	}

	timeDiff, err := item.modtimeDiff()
	if err != nil {
		log.Emit(logger.WARNING, "Source of held item %s has gone away, removing\n", item)
		service.removeItem(id)
		return
	}

	thresholdModTime := service.config.RequiredModTimeAgeDuration()
	if timeDiff < thresholdModTime {
		service.scheduleImportHoldTimer(id, thresholdModTime-timeDiff)
		return
	}

	item.State = Idle
	service.queueEvent(event.INGEST_UPDATE, id)
	service.wakeupWorkerPool()
}

// scheduleImportHoldTimer will call evaluateItemHold for the item provided
// after the delay duration specified has elapsed. Any existing import hold timer
// for the item specified will be *cancelled* before the new timer is created.
func (service *Service) scheduleImportHoldTimer(id uuid.UUID, delay time.Duration) {
	service.clearImportHoldTimer(id)
	service.importHoldTimers[id] = time.AfterFunc(delay, func() {
		service.evaluateItemHold(id)
	})
}

func (service *Service) clearImportHoldTimer(id uuid.UUID) {
	if timer, ok := service.importHoldTimers[id]; ok {
		timer.Stop()
		delete(service.importHoldTimers, id)
	}
}

func (service *Service) clearAllImportHoldTimers() {
	service.Lock()
	defer service.unlockAndFlush()

	for key, timer := range service.importHoldTimers {
		timer.Stop()
		delete(service.importHoldTimers, key)
	}
}
