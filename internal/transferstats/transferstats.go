// Package transferstats aggregates byte counts across transfers.
//
// Host applications read the aggregate to render global progress bars
// spanning several transfers.
package transferstats

import (
	"sync"
	"sync/atomic"
)

// TransferKind is the category of payload moved by a transfer.
type TransferKind int

const (
	KindOther = TransferKind(iota)

	// A media file, like an image or video.
	KindMedia

	// A document, like a PDF or text file.
	KindDocument

	// A compressed archive.
	KindArchive
)

// Summary is a snapshot of aggregate byte counts.
type Summary struct {
	UploadedBytes      int64
	TotalUploadBytes   int64
	DownloadedBytes    int64
	TotalDownloadBytes int64
}

// Counts is a breakdown of the kinds of payloads uploaded.
type Counts struct {
	MediaCount    int32
	DocumentCount int32
	ArchiveCount  int32
	OtherCount    int32
}

// Stats reports upload/download progress and totals across transfers.
type Stats interface {
	// Summary returns byte counts for uploads and downloads.
	Summary() Summary

	// Counts returns a breakdown of the kinds of payloads uploaded.
	Counts() Counts

	// IsDone returns whether all transfers finished.
	IsDone() bool

	// SetDone marks all transfers as finished.
	SetDone()

	// UpdateUploadStats updates the upload stats for a transfer.
	UpdateUploadStats(newInfo UploadInfo)

	// UpdateDownloadStats updates the download stats for a transfer.
	UpdateDownloadStats(newInfo DownloadInfo)
}

// UploadInfo is information about an in-progress upload.
type UploadInfo struct {
	// Key identifies the transfer, typically its target URL.
	Key string

	// The kind of payload this is.
	Kind TransferKind

	// The number of bytes uploaded so far.
	UploadedBytes int64

	// The total number of bytes being uploaded.
	TotalBytes int64
}

// DownloadInfo is information about an in-progress download.
type DownloadInfo struct {
	// Key identifies the transfer, typically its source URL.
	Key string

	// The number of bytes downloaded so far.
	DownloadedBytes int64

	// The total number of bytes being downloaded.
	TotalBytes int64
}

type transferStats struct {
	sync.Mutex

	done *atomic.Bool

	uploadStatsByKey map[string]UploadInfo

	uploadedBytes *atomic.Int64
	totalBytes    *atomic.Int64

	downloadStatsByKey   map[string]DownloadInfo
	downloadedBytes      *atomic.Int64
	totalDownloadedBytes *atomic.Int64

	mediaCount    *atomic.Int32
	documentCount *atomic.Int32
	archiveCount  *atomic.Int32
	otherCount    *atomic.Int32
}

func New() Stats {
	return &transferStats{
		done: &atomic.Bool{},

		uploadStatsByKey: make(map[string]UploadInfo),

		uploadedBytes: &atomic.Int64{},
		totalBytes:    &atomic.Int64{},

		downloadStatsByKey:   make(map[string]DownloadInfo),
		downloadedBytes:      &atomic.Int64{},
		totalDownloadedBytes: &atomic.Int64{},

		mediaCount:    &atomic.Int32{},
		documentCount: &atomic.Int32{},
		archiveCount:  &atomic.Int32{},
		otherCount:    &atomic.Int32{},
	}
}

func (ts *transferStats) Summary() Summary {
	// NOTE: We don't lock, so these could be out of sync. For instance,
	// TotalUploadBytes could be less than UploadedBytes!
	return Summary{
		UploadedBytes:      ts.uploadedBytes.Load(),
		TotalUploadBytes:   ts.totalBytes.Load(),
		DownloadedBytes:    ts.downloadedBytes.Load(),
		TotalDownloadBytes: ts.totalDownloadedBytes.Load(),
	}
}

func (ts *transferStats) Counts() Counts {
	return Counts{
		MediaCount:    ts.mediaCount.Load(),
		DocumentCount: ts.documentCount.Load(),
		ArchiveCount:  ts.archiveCount.Load(),
		OtherCount:    ts.otherCount.Load(),
	}
}

func (ts *transferStats) IsDone() bool {
	return ts.done.Load()
}

func (ts *transferStats) SetDone() {
	ts.done.Store(true)
}

func (ts *transferStats) UpdateUploadStats(newInfo UploadInfo) {
	ts.Lock()
	defer ts.Unlock()

	if oldInfo, ok := ts.uploadStatsByKey[newInfo.Key]; ok {
		ts.addStats(oldInfo, -1)
	}

	ts.uploadStatsByKey[newInfo.Key] = newInfo
	ts.addStats(newInfo, 1)
}

func (ts *transferStats) UpdateDownloadStats(newInfo DownloadInfo) {
	ts.Lock()
	defer ts.Unlock()

	if oldInfo, ok := ts.downloadStatsByKey[newInfo.Key]; ok {
		ts.downloadedBytes.Add(-oldInfo.DownloadedBytes)
		ts.totalDownloadedBytes.Add(-oldInfo.TotalBytes)
	}

	ts.downloadStatsByKey[newInfo.Key] = newInfo
	ts.downloadedBytes.Add(newInfo.DownloadedBytes)
	ts.totalDownloadedBytes.Add(newInfo.TotalBytes)
}

func (ts *transferStats) addStats(info UploadInfo, mult int64) {
	ts.uploadedBytes.Add(info.UploadedBytes * mult)
	ts.totalBytes.Add(info.TotalBytes * mult)

	switch info.Kind {
	default:
		ts.otherCount.Add(int32(mult))
	case KindMedia:
		ts.mediaCount.Add(int32(mult))
	case KindDocument:
		ts.documentCount.Add(int32(mult))
	case KindArchive:
		ts.archiveCount.Add(int32(mult))
	}
}
