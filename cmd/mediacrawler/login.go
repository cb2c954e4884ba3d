package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/MediaCrawler/internal/core"
	"github.com/RecoveryAshes/MediaCrawler/internal/login"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

// statusPollInterval 命令行等待登录结果的轮询间隔
const statusPollInterval = 2 * time.Second

var (
	loginPlatform string
	loginType     string
	loginCookie   string
	loginPhone    string
	loginForce    bool
	qrOutput      string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "登录平台 (扫码 / cookie / 手机验证码)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := models.ParsePlatform(loginPlatform)
		if err != nil {
			return err
		}
		kind, err := models.ParseLoginType(loginType)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *core.App) error {
			sess, err := app.Login.StartLogin(ctx, login.StartRequest{
				Platform:  p,
				LoginType: kind,
				Cookie:    loginCookie,
				Phone:     loginPhone,
				Force:     loginForce,
			})
			if err != nil {
				return err
			}
			return waitLogin(ctx, app.Login, sess)
		})
	},
}

// waitLogin 输出二维码并等待会话进入终态
func waitLogin(ctx context.Context, svc *login.Service, sess *models.LoginSession) error {
	qrShown := ""
	codeSent := false
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		if sess.QRCode != "" && sess.QRCode != qrShown {
			path, err := saveQRCode(sess)
			if err != nil {
				return err
			}
			qrShown = sess.QRCode
			utils.Infof("请使用 %s App 扫描二维码: %s", sess.Platform, path)
		}

		if sess.LoginType == models.LoginTypePhone && sess.Status == models.LoginStatusWaitingScan && !codeSent {
			code, err := promptCode()
			if err != nil {
				return err
			}
			if err := svc.SubmitPhoneCode(sess.ID, code); err != nil {
				return err
			}
			codeSent = true
		}

		switch sess.Status {
		case models.LoginStatusSuccess:
			utils.Infof("[%s] %s", sess.Platform, sess.Message)
			for k, v := range sess.Identity {
				utils.Infof("  %s: %s", k, v)
			}
			return nil
		case models.LoginStatusExpired, models.LoginStatusFailed:
			return fmt.Errorf("[%s] 登录未完成 (%s): %s", sess.Platform, sess.Status, sess.Message)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		next, err := svc.GetStatus(sess.ID)
		if err != nil {
			return err
		}
		if next.Status != sess.Status {
			utils.Debugf("登录状态: %s -> %s", sess.Status, next.Status)
		}
		sess = next
	}
}

// saveQRCode 把base64二维码写成图片文件
func saveQRCode(sess *models.LoginSession) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sess.QRCode)
	if err != nil {
		return "", fmt.Errorf("二维码解码失败: %w", err)
	}
	path := qrOutput
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("mediacrawler_%s_qrcode.png", sess.Platform))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("保存二维码失败: %w", err)
	}
	return path, nil
}

func promptCode() (string, error) {
	fmt.Print("请输入短信验证码: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("读取验证码失败: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "退出登录并清除浏览器数据",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := models.ParsePlatform(loginPlatform)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *core.App) error {
			if err := app.Login.Logout(ctx, p); err != nil {
				return err
			}
			utils.Infof("[%s] 已退出登录", p)
			return nil
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "查看各平台登录状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *core.App) error {
			fmt.Printf("%-10s %-8s %s\n", "平台", "已登录", "最近登录")
			for _, s := range app.Login.ListSessions(ctx) {
				fmt.Printf("%-10s %-8v %s\n", s.Platform, s.IsLoggedIn, s.LastLogin)
			}
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, logoutCmd} {
		cmd.Flags().StringVarP(&loginPlatform, "platform", "p", "", "平台 (xhs|bilibili)")
		cmd.MarkFlagRequired("platform")
	}
	loginCmd.Flags().StringVarP(&loginType, "type", "t", "qrcode", "登录方式 (qrcode|cookie|phone)")
	loginCmd.Flags().StringVar(&loginCookie, "cookie", "", "cookie登录的凭据, 形如 'k1=v1; k2=v2'")
	loginCmd.Flags().StringVar(&loginPhone, "phone", "", "手机号登录的号码")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "忽略已登录状态, 强制重新登录")
	loginCmd.Flags().StringVar(&qrOutput, "qr-output", "", "二维码图片保存路径 (默认写入临时目录)")
}
