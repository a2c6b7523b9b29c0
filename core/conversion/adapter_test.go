package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"CoverFM/core/errs"
	"CoverFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService 记录调用顺序，failAt 指定的方法返回错误
type fakeService struct {
	failAt  string
	failErr error
	models  []string
	srcs    []string
	calls   []string
	content []byte
}

func (f *fakeService) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		if f.failErr != nil {
			return f.failErr
		}
		return fmt.Errorf("%s: element not found", name)
	}
	return nil
}

func (f *fakeService) RefreshModels(ctx context.Context) error { return f.step("refresh") }

func (f *fakeService) SelectModel(ctx context.Context, name string) error {
	if err := f.step("select"); err != nil {
		return err
	}
	for _, m := range f.models {
		if m == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

func (f *fakeService) UnloadModel(ctx context.Context) error { return f.step("unload") }
func (f *fakeService) LoadModel(ctx context.Context) error   { return f.step("load") }

func (f *fakeService) SubmitAudio(ctx context.Context, path string) error {
	return f.step("submitAudio")
}

func (f *fakeService) SubmitText(ctx context.Context, text, voice string) error {
	return f.step("submitText")
}

func (f *fakeService) Trigger(ctx context.Context, mode Mode) error {
	return f.step("trigger:" + mode.String())
}

func (f *fakeService) AwaitOutput(ctx context.Context, match OutputMatcher) (string, error) {
	if err := f.step("await"); err != nil {
		return "", err
	}
	if src, ok := FirstMatching(f.srcs, match); ok {
		return src, nil
	}
	return "", ErrOutputNotFound
}

func (f *fakeService) DownloadOutput(ctx context.Context, src, dest string) error {
	if err := f.step("download"); err != nil {
		return err
	}
	return os.WriteFile(dest, f.content, 0644)
}

func (f *fakeService) Screenshot(ctx context.Context, path string) error {
	f.calls = append(f.calls, "screenshot")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0644)
}

func (f *fakeService) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

func (f *fakeService) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func newFakeService() *fakeService {
	return &fakeService{
		models:  []string{"jo.pth", "jo.pth.bak"},
		srcs:    []string{"", "http://127.0.0.1:7860/file=/tmp/example.mp3", "http://127.0.0.1:7860/file=/tmp/gradio/晴天_vocals_qingxu_0.wav"},
		content: []byte("RIFF-converted"),
	}
}

type adapterFixture struct {
	dir     string
	vocals  *model.Artifact
	adapter *Adapter
	states  []State
	opened  int
}

func newAdapterFixture(t *testing.T, svc *fakeService) *adapterFixture {
	dir := t.TempDir()
	vocals := filepath.Join(dir, "晴天_vocals.wav")
	require.NoError(t, os.WriteFile(vocals, []byte("RIFF"), 0644))

	f := &adapterFixture{dir: dir, vocals: model.NewArtifact(vocals, model.StageVocals, nil)}
	f.adapter = NewAdapter(Options{
		URL:           "http://127.0.0.1:7860",
		Model:         "jo.pth",
		WorkDir:       filepath.Join(dir, "work"),
		ScreenshotDir: filepath.Join(dir, "shots"),
	}, func(ctx context.Context) (RemoteConversionService, error) {
		f.opened++
		return svc, nil
	}, nil)
	f.adapter.OnTransition = func(s State) { f.states = append(f.states, s) }
	return f
}

func TestConvertAudioHappyPath(t *testing.T) {
	svc := newFakeService()
	f := newAdapterFixture(t, svc)

	art, err := f.adapter.ConvertAudio(context.Background(), f.vocals)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "work", "晴天_vocals_jo_converted.wav"), art.Path)
	assert.Equal(t, model.StageConverted, art.Stage)
	assert.Same(t, f.vocals, art.DerivedFrom)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-converted", string(data))

	assert.Equal(t, []string{
		"refresh", "select", "unload", "load", "submitAudio", "trigger:convert", "await", "download", "unload", "close",
	}, svc.calls)
	assert.Equal(t, []State{
		StateModelSelected, StateModelUnloaded, StateModelLoaded, StateInputSubmitted,
		StateProcessing, StateOutputLocated, StateDownloaded, StateCleanedUp,
	}, f.states)
}

func TestConvertAudioSkipsWhenOutputExists(t *testing.T) {
	svc := newFakeService()
	f := newAdapterFixture(t, svc)
	dest := f.adapter.ConvertedPath(f.vocals.Path)
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0755))
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	art, err := f.adapter.ConvertAudio(context.Background(), f.vocals)
	require.NoError(t, err)
	assert.Equal(t, dest, art.Path)
	assert.Equal(t, 0, f.opened)
	assert.Empty(t, svc.calls)
}

// 在每个步骤注入失败，清理都只执行一次，且失败时先截图
func TestCleanupRunsExactlyOnceOnEveryFailure(t *testing.T) {
	steps := []struct {
		failAt string
		kind   errs.Kind
	}{
		{"refresh", errs.KindRemoteTool},
		{"select", errs.KindRemoteTool},
		{"unload", errs.KindRemoteTool},
		{"load", errs.KindRemoteTool},
		{"submitAudio", errs.KindRemoteTool},
		{"trigger:convert", errs.KindRemoteTool},
		{"await", errs.KindRemoteTool},
		{"download", errs.KindRemoteTool},
	}
	for _, tt := range steps {
		t.Run(tt.failAt, func(t *testing.T) {
			svc := newFakeService()
			svc.failAt = tt.failAt
			f := newAdapterFixture(t, svc)

			_, err := f.adapter.ConvertAudio(context.Background(), f.vocals)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, "convert", errs.StageOf(err))

			assert.Equal(t, 1, svc.count("close"))
			assert.Equal(t, 1, svc.count("screenshot"))
			n := len(svc.calls)
			require.GreaterOrEqual(t, n, 3)
			// 失败步骤之后依次是：截图、卸载、关闭
			assert.Equal(t, []string{"screenshot", "unload", "close"}, svc.calls[n-3:])

			assert.Equal(t, StateCleanedUp, f.states[len(f.states)-1])
			assert.Equal(t, StateFailed, f.states[len(f.states)-2])
			assert.FileExists(t, errs.ScreenshotOf(err))
			assert.NoFileExists(t, f.adapter.ConvertedPath(f.vocals.Path))
		})
	}
}

func TestConvertAudioOutputNeverAppears(t *testing.T) {
	svc := newFakeService()
	svc.srcs = []string{"http://127.0.0.1:7860/file=/tmp/example.mp3"}
	f := newAdapterFixture(t, svc)

	_, err := f.adapter.ConvertAudio(context.Background(), f.vocals)
	require.Error(t, err)
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
	assert.NotEmpty(t, errs.ScreenshotOf(err))
	// 重置时一次，退出时一次
	assert.Equal(t, 2, svc.count("unload"))
	assert.Equal(t, 1, svc.count("close"))
	assert.Equal(t, "处理超时了，请稍后再试", errs.UserMessage(err))
}

func TestModelNotFoundFailsFast(t *testing.T) {
	svc := newFakeService()
	svc.models = []string{"jo.pth.bak", "other.pth"}
	f := newAdapterFixture(t, svc)

	_, err := f.adapter.ConvertAudio(context.Background(), f.vocals)
	require.Error(t, err)
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
	assert.True(t, errors.Is(err, ErrModelNotFound))
	assert.Equal(t, 0, svc.count("load"))
	assert.Equal(t, 0, svc.count("submitAudio"))
	assert.Equal(t, 1, svc.count("unload"))
	assert.Equal(t, 1, svc.count("close"))
}

func TestCanceledRequestStillUnloads(t *testing.T) {
	svc := newFakeService()
	svc.failAt = "await"
	svc.failErr = context.Canceled
	f := newAdapterFixture(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.adapter.ConvertAudio(ctx, f.vocals)
	require.Error(t, err)
	assert.Equal(t, errs.KindCanceled, errs.KindOf(err))
	assert.Equal(t, 2, svc.count("unload"))
	assert.Equal(t, 1, svc.count("close"))
}

func TestFactoryFailureIsRemoteToolError(t *testing.T) {
	dir := t.TempDir()
	vocals := filepath.Join(dir, "a_vocals.wav")
	require.NoError(t, os.WriteFile(vocals, []byte("RIFF"), 0644))

	a := NewAdapter(Options{Model: "jo.pth", WorkDir: dir}, func(ctx context.Context) (RemoteConversionService, error) {
		return nil, errors.New("chrome not found")
	}, nil)
	_, err := a.ConvertAudio(context.Background(), model.NewArtifact(vocals, model.StageVocals, nil))
	assert.Equal(t, errs.KindRemoteTool, errs.KindOf(err))
}

func TestConvertAudioMissingInput(t *testing.T) {
	svc := newFakeService()
	f := newAdapterFixture(t, svc)
	_, err := f.adapter.ConvertAudio(context.Background(), model.NewArtifact(filepath.Join(f.dir, "nope.wav"), model.StageVocals, nil))
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
	assert.Equal(t, 0, f.opened)
}

func TestSynthesize(t *testing.T) {
	svc := newFakeService()
	svc.srcs = []string{"http://127.0.0.1:7860/file=/tmp/gradio/x_tts_1.wav"}
	f := newAdapterFixture(t, svc)

	art, err := f.adapter.Synthesize(context.Background(), "  你好，世界  ")
	require.NoError(t, err)
	assert.Equal(t, model.StageSpeech, art.Stage)
	assert.Equal(t, f.adapter.SpeechPath("你好，世界"), art.Path)
	assert.Contains(t, svc.calls, "submitText")
	assert.Contains(t, svc.calls, "trigger:tts")

	// 相同文本直接复用
	svc.calls = nil
	again, err := f.adapter.Synthesize(context.Background(), "你好，世界")
	require.NoError(t, err)
	assert.Equal(t, art.Path, again.Path)
	assert.Empty(t, svc.calls)

	_, err = f.adapter.Synthesize(context.Background(), "   ")
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
}

func TestOutputPathsDependOnModel(t *testing.T) {
	work := t.TempDir()
	jo := NewAdapter(Options{Model: "jo.pth", WorkDir: work}, nil, nil)
	other := NewAdapter(Options{Model: "models/other.pth", WorkDir: work}, nil, nil)
	otherVoice := NewAdapter(Options{Model: "jo.pth", Voice: "男", WorkDir: work}, nil, nil)

	assert.Equal(t, filepath.Join(work, "晴天_vocals_other_converted.wav"), other.ConvertedPath("/r/晴天_vocals.wav"))
	assert.NotEqual(t, jo.ConvertedPath("/r/晴天_vocals.wav"), other.ConvertedPath("/r/晴天_vocals.wav"))

	assert.NotEqual(t, jo.SpeechPath("你好"), other.SpeechPath("你好"))
	assert.NotEqual(t, jo.SpeechPath("你好"), otherVoice.SpeechPath("你好"))

	assert.NotEqual(t, jo.Fingerprint(), other.Fingerprint())
	assert.NotEqual(t, jo.Fingerprint(), otherVoice.Fingerprint())
}
