package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEKeepsInnermostKind(t *testing.T) {
	inner := NotFound("acquire", "无结果")
	outer := E(KindRemoteTool, "pipeline", "包装", inner)
	assert.Equal(t, KindNotFound, KindOf(outer))
	assert.Equal(t, "acquire", StageOf(outer))

	wrapped := fmt.Errorf("外层: %w", inner)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestEMapsContextErrors(t *testing.T) {
	assert.Equal(t, KindCanceled, KindOf(E(KindRemoteTool, "convert", "点击", context.Canceled)))
	assert.Equal(t, KindCanceled, KindOf(E(KindRemoteTool, "convert", "点击", context.DeadlineExceeded)))
	assert.Equal(t, KindTimeout, KindOf(E(KindTimeout, "separate", "轮询", context.DeadlineExceeded)))
	assert.Equal(t, KindCanceled, KindOf(context.Canceled))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWithScreenshot(t *testing.T) {
	err := RemoteTool("convert", "选择模型", errors.New("no node"))
	err = WithScreenshot(err, "shots/convert_1.png")
	assert.Equal(t, "shots/convert_1.png", ScreenshotOf(err))
	assert.Contains(t, err.Error(), "screenshot: shots/convert_1.png")

	// 已有截图时不覆盖
	err = WithScreenshot(err, "shots/other.png")
	assert.Equal(t, "shots/convert_1.png", ScreenshotOf(err))

	plain := WithScreenshot(errors.New("boom"), "a.png")
	assert.Equal(t, KindRemoteTool, KindOf(plain))
	assert.Nil(t, WithScreenshot(nil, "a.png"))
}

func TestUserMessageHidesDetails(t *testing.T) {
	err := RemoteTool("convert", "点击 #component-83", errors.New("cdp: node not found"))
	msg := UserMessage(err)
	assert.NotContains(t, msg, "component")
	assert.NotContains(t, msg, "cdp")
	assert.Equal(t, "处理超时了，请稍后再试", UserMessage(Timeout("separate", "300s")))
	assert.Empty(t, UserMessage(nil))

	kinds := []Kind{KindUnknown, KindNotFound, KindTimeout, KindPrecondition, KindRemoteTool, KindCanceled}
	seen := map[string]bool{}
	for _, k := range kinds {
		seen[k.String()] = true
	}
	assert.Len(t, seen, len(kinds))
}
