package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Stage 产物所处的流水线阶段
type Stage string

const (
	StageRaw          Stage = "RAW"
	StageVocals       Stage = "VOCALS"
	StageInstrumental Stage = "INSTRUMENTAL"
	StageConverted    Stage = "CONVERTED"
	StageSpeech       Stage = "SPEECH"
	StageFinal        Stage = "FINAL"
)

// Artifact 某个阶段产出的文件，创建后不再修改
type Artifact struct {
	Path        string    `json:"path"`
	Stage       Stage     `json:"stage"`
	DerivedFrom *Artifact `json:"derivedFrom,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewArtifact 创建一个新的产物记录
func NewArtifact(path string, stage Stage, from *Artifact) *Artifact {
	return &Artifact{Path: path, Stage: stage, DerivedFrom: from, CreatedAt: time.Now()}
}

// BaseName 不带扩展名的文件名
func (a *Artifact) BaseName() string {
	name := filepath.Base(a.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// StemPair 分离阶段的两个输出
type StemPair struct {
	Instrumental *Artifact `json:"instrumental"`
	Vocals       *Artifact `json:"vocals"`
}
