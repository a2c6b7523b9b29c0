// Package mixdown 把变声后的人声和伴奏叠加成最终成品。
package mixdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/core/errs"
	"CoverFM/core/utils"
	"CoverFM/logger"
	"CoverFM/model"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

const (
	stageName       = "mixdown"
	resampleQuality = 4
)

// Mixer 混音阶段
type Mixer struct {
	workDir string
}

func NewMixer(workDir string) *Mixer {
	return &Mixer{workDir: workDir}
}

// OutputPath 成品路径：<workDir>/<歌名>_changed.wav，歌名取自伴奏文件名去掉 _other 后缀
func (m *Mixer) OutputPath(instrumental string) string {
	base := strings.TrimSuffix(filepath.Base(instrumental), filepath.Ext(instrumental))
	base = strings.TrimSuffix(base, "_other")
	return filepath.Join(m.workDir, base+"_changed.wav")
}

// Mixdown 截取两者中较短的时长后叠加。输入缺失时不做任何处理直接返回。
func (m *Mixer) Mixdown(ctx context.Context, vocals, instrumental *model.Artifact) (*model.Artifact, error) {
	for _, a := range []*model.Artifact{vocals, instrumental} {
		if a == nil || !utils.FileExists(a.Path) {
			p := ""
			if a != nil {
				p = a.Path
			}
			return nil, errs.Precondition(stageName, "混音输入不存在: %s", p)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.KindCanceled, stageName, "混音", err)
	}

	dest := m.OutputPath(instrumental.Path)
	start := time.Now()
	frames, err := MixFiles(vocals.Path, instrumental.Path, dest)
	if err != nil {
		return nil, errs.E(errs.KindRemoteTool, stageName, "混音", err)
	}

	logger.Info("混音完成",
		logger.Stage(stageName),
		logger.String("output", dest),
		logger.Int("frames", frames),
		logger.Duration("elapsed", time.Since(start)))
	return model.NewArtifact(dest, model.StageFinal, vocals), nil
}

// MixFiles 以 b 的采样率为准，a 采样率不同时先重采样，返回输出帧数
func MixFiles(a, b, dest string) (int, error) {
	sa, fa, err := decode(a)
	if err != nil {
		return 0, err
	}
	defer sa.Close()
	sb, fb, err := decode(b)
	if err != nil {
		return 0, err
	}
	defer sb.Close()

	var streamA beep.Streamer = sa
	lenA := sa.Len()
	if fa.SampleRate != fb.SampleRate {
		streamA = beep.Resample(resampleQuality, fa.SampleRate, fb.SampleRate, sa)
		lenA = int(int64(lenA) * int64(fb.SampleRate) / int64(fa.SampleRate))
	}

	n := lenA
	if l := sb.Len(); l < n {
		n = l
	}
	if n <= 0 {
		return 0, fmt.Errorf("音频长度为 0")
	}

	mixed := beep.Take(n, beep.Mix(beep.Take(n, streamA), beep.Take(n, sb)))
	format := fb
	if format.Precision == 0 {
		format.Precision = 2
	}

	if err := utils.WriteAtomic(dest, func(f *os.File) error {
		if err := wav.Encode(f, mixed, format); err != nil {
			return fmt.Errorf("写入 wav 失败: %w", err)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return n, nil
}

// Duration 读取音频时长
func Duration(path string) (time.Duration, error) {
	s, f, err := decode(path)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return f.SampleRate.D(s.Len()), nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("打开音频失败: %w", err)
	}

	var (
		s beep.StreamSeekCloser
		f beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, f, err = mp3.Decode(file)
	default:
		s, f, err = wav.Decode(file)
	}
	if err != nil {
		file.Close()
		return nil, beep.Format{}, fmt.Errorf("解码音频失败 %s: %w", filepath.Base(path), err)
	}
	return s, f, nil
}
