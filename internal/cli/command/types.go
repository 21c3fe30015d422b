package command

import (
	"github.com/yndnr/stablemem/internal/core/domain"
	"github.com/yndnr/stablemem/internal/infra/buildinfo"
)

// Response bodies of the server API, decoded from the envelope data field.

type pushBlobResult struct {
	Key  uint64 `json:"key" yaml:"key"`
	Size int    `json:"size" yaml:"size"`
}

type snapshotInfo struct {
	Version    uint16 `json:"version" yaml:"version"`
	CreatedAt  int64  `json:"created_at" yaml:"created_at"`
	EntryCount uint64 `json:"entry_count" yaml:"entry_count"`
	Size       uint64 `json:"size" yaml:"size"`
	Pages      uint64 `json:"pages" yaml:"pages"`
	Checksum   string `json:"checksum" yaml:"checksum"`
}

type snapshotResult struct {
	Snapshot *snapshotInfo `json:"snapshot" yaml:"snapshot"`
}

type memoryHeader struct {
	domain.MemoryHeader `yaml:",inline"`
	Trusted             bool `json:"trusted" yaml:"trusted"`
}

type restoreResult struct {
	Offset      uint64 `json:"offset" yaml:"offset"`
	Bytes       int    `json:"bytes" yaml:"bytes"`
	ChunkHash   string `json:"chunk_hash" yaml:"chunk_hash"`
	StablePages uint64 `json:"stable_pages" yaml:"stable_pages"`
}

type engineStats struct {
	Entries     int           `json:"entries" yaml:"entries"`
	Bytes       uint64        `json:"bytes" yaml:"bytes"`
	Backend     string        `json:"backend" yaml:"backend"`
	StablePages uint64        `json:"stable_pages" yaml:"stable_pages"`
	MaxPages    uint64        `json:"max_pages" yaml:"max_pages"`
	MaxPayload  uint64        `json:"max_payload" yaml:"max_payload"`
	LastSave    *snapshotInfo `json:"last_save,omitempty" yaml:"last_save,omitempty"`
	LastLoad    *snapshotInfo `json:"last_load,omitempty" yaml:"last_load,omitempty"`
}

type statusSummary struct {
	Status string              `json:"status" yaml:"status"`
	Build  buildinfo.Info      `json:"build" yaml:"build"`
	Time   string              `json:"time" yaml:"time"`
	Engine engineStats         `json:"engine" yaml:"engine"`
	Memory domain.MemoryHeader `json:"memory" yaml:"memory"`
}

type archiveInfo struct {
	ID   string `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

type archiveList struct {
	Archives []archiveInfo `json:"archives" yaml:"archives"`
}

type healthStatus struct {
	Status string `json:"status" yaml:"status"`
	Time   string `json:"time,omitempty" yaml:"time,omitempty"`
}
