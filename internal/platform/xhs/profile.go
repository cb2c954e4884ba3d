package xhs

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

const initialStatePrefix = "window.__INITIAL_STATE__="

// CreatorProfile 抓取创作者主页HTML并解析 __INITIAL_STATE__ 中的资料
func (a *Adapter) CreatorProfile(ctx context.Context, c platform.Caller, creatorID string) (*models.Creator, error) {
	id, err := ParseCreatorID(creatorID)
	if err != nil {
		return nil, err
	}

	snap, err := c.Snapshot(ctx, Platform)
	if err != nil {
		return nil, err
	}

	pageURL := a.WebBase + "/user/profile/" + url.PathEscape(id)
	html, err := a.fetchProfile(ctx, pageURL, snap)
	if err != nil {
		return nil, &models.HardAPIError{Platform: Platform, Endpoint: "/user/profile", Message: "获取主页失败", Cause: err}
	}

	creator, err := parseProfileHTML(html)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, nil
	}
	creator.ID = id
	creator.URL = WebHost + "/user/profile/" + id
	creator.CrawledAt = time.Now()
	return creator, nil
}

// fetchProfile 使用会话cookie抓取主页
func (a *Adapter) fetchProfile(ctx context.Context, pageURL string, snap models.CookieSnapshot) ([]byte, error) {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(30 * time.Second)

	cookies := make([]*http.Cookie, 0, len(snap.Cookies))
	for _, ck := range snap.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	if err := collector.SetCookies(pageURL, cookies); err != nil {
		return nil, fmt.Errorf("设置cookie失败: %w", err)
	}

	headers := a.DefaultHeaders()
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Referer", headers["Referer"])
	})

	var body []byte
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, err
	}
	collector.Wait()

	log.Debug().Str("url", pageURL).Int("bytes", len(body)).Msg("已获取创作者主页")
	return body, nil
}

// parseProfileHTML 从主页HTML中提取 user.userPageData
// 页面没有资料(用户不存在)时返回 nil
func parseProfileHTML(html []byte) (*models.Creator, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析主页HTML失败: %w", err)
	}

	var state string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.HasPrefix(text, initialStatePrefix) {
			state = strings.TrimSuffix(strings.TrimPrefix(text, initialStatePrefix), ";")
			return false
		}
		return true
	})
	if state == "" {
		return nil, nil
	}
	// 页面状态中存在JS的 undefined
	state = strings.ReplaceAll(state, ":undefined", ":null")

	var parsed struct {
		User struct {
			UserPageData *struct {
				BasicInfo struct {
					Nickname   string      `json:"nickname"`
					Images     string      `json:"images"`
					Desc       string      `json:"desc"`
					Gender     interface{} `json:"gender"`
					IPLocation string      `json:"ipLocation"`
				} `json:"basicInfo"`
				Interactions []struct {
					Type  string      `json:"type"`
					Count interface{} `json:"count"`
				} `json:"interactions"`
			} `json:"userPageData"`
		} `json:"user"`
	}
	if err := platform.DecodeJSON([]byte(state), &parsed); err != nil {
		return nil, fmt.Errorf("解析页面状态失败: %w", err)
	}
	data := parsed.User.UserPageData
	if data == nil || data.BasicInfo.Nickname == "" {
		return nil, nil
	}

	creator := &models.Creator{
		Platform:   Platform,
		Nickname:   data.BasicInfo.Nickname,
		Avatar:     data.BasicInfo.Images,
		Desc:       data.BasicInfo.Desc,
		Gender:     genderName(data.BasicInfo.Gender),
		IPLocation: data.BasicInfo.IPLocation,
	}
	for _, in := range data.Interactions {
		n := platform.ParseCount(in.Count)
		switch in.Type {
		case "follows":
			creator.Follows = n
		case "fans":
			creator.Fans = n
		case "interaction":
			creator.Interaction = n
		}
	}
	return creator, nil
}

func genderName(v interface{}) string {
	switch platform.ParseCount(v) {
	case 0:
		if v == nil {
			return ""
		}
		return "男"
	case 1:
		return "女"
	default:
		return ""
	}
}
