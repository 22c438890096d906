package visual

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 检查本机是否可启动 headless Chrome，结果只探测一次。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// RenderRunPNG 渲染会话页面并截图。需要本机安装 Chrome。
func RenderRunPNG(ctx context.Context, in RunInput) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, err
	}
	html, err := RenderRunHTML(in)
	if err != nil {
		return nil, err
	}
	charts := 2
	if in.MaxStep > 0 {
		charts = 3
	}
	return renderHTMLToPNG(ctx, html, chartWidthPx+40, charts*(chartHeightPx+40))
}

// pngTimeout 限制单次截图的总耗时；settleDelay 等待 echarts 动画结束。
var (
	pngTimeout  = 20 * time.Second
	settleDelay = 1500 * time.Millisecond
)

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	browserCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, pngTimeout)
	defer cancelTimeout()

	var shot []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString(html)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return shot, nil
}
