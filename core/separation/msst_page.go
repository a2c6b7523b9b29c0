package separation

import (
	"context"
	"fmt"
	"strconv"

	"CoverFM/core/automation"

	"github.com/chromedp/chromedp"
)

// MSST WebUI 页面元素
const (
	msstFileInput   = `input[type='file'][data-testid='file-upload']`
	msstStartButton = `#component-47`
	msstStatusXPath = `//span[@data-testid='block-info' and contains(text(), 'Output Message')]/following-sibling::textarea`
)

// msstPage 基于 chromedp 的 MSST 页面实现
type msstPage struct {
	session *automation.Session
}

// NewMSSTPageFactory 每次调用启动一个新的浏览器会话
func NewMSSTPageFactory(url string, opts automation.SessionOptions) PageFactory {
	return func(ctx context.Context) (Page, error) {
		s, err := automation.NewSession(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return &msstPage{session: s}, nil
	}
}

func (p *msstPage) Upload(ctx context.Context, path string) error {
	return p.session.Run(ctx, chromedp.SetUploadFiles(msstFileInput, []string{path}, chromedp.ByQuery))
}

func (p *msstPage) Start(ctx context.Context) error {
	return p.session.Run(ctx, chromedp.Click(msstStartButton, chromedp.ByQuery))
}

// StatusText 读取 Output Message 文本框；元素还没渲染时返回空串
func (p *msstPage) StatusText(ctx context.Context) (string, error) {
	expr := fmt.Sprintf(`(() => {
		const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) return "";
		return el.value || el.innerText || el.textContent || "";
	})()`, strconv.Quote(msstStatusXPath))

	var msg string
	if err := p.session.Evaluate(ctx, expr, &msg); err != nil {
		return "", err
	}
	return msg, nil
}

func (p *msstPage) Screenshot(ctx context.Context, path string) error {
	return p.session.Screenshot(ctx, path)
}

func (p *msstPage) Close() error {
	return p.session.Close()
}
