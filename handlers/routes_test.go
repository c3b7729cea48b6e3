package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"game-mission-service/database"
	"game-mission-service/handlers"
	"game-mission-service/middleware"
	"game-mission-service/models"
	"game-mission-service/services"
	"game-mission-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const gatewayToken = "test-gateway-token"

type testEnv struct {
	App    *fiber.App
	DB     *gorm.DB
	Svc    handlers.Services
	Runner *workers.Runner
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	notifier := services.NewNotificationService(db)
	wallet := services.NewWalletService(db, notifier)
	leveling := services.NewLevelingService(db, wallet, notifier)
	calculator := services.NewProgressCalculator(db, services.DefaultStrategies())
	tracker := services.NewProgressTracker(db, calculator)
	wallet.Refresher = tracker
	titles := services.NewTitleService(db, notifier)
	rewardables := services.NewRewardableRegistry()
	rewardables.Register(models.RewardableTitle, titles)
	rewards := services.NewRewardService(db, wallet, leveling, notifier, rewardables)
	rewards.Refresher = tracker

	queue := workers.NewQueue(db, workers.QueueOptions{})
	runner := workers.NewRunner(queue, 1, 0)
	rewardTasks := workers.NewRewardTasks(queue, rewards)
	rewardTasks.Register(runner)

	svc := handlers.Services{
		Users:         services.NewUserService(db),
		Wallet:        wallet,
		Leveling:      leveling,
		Titles:        titles,
		Missions:      services.NewMissionService(db, calculator, tracker, rewardTasks, rewardables),
		Notifications: notifier,
	}

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(gatewayToken))
	handlers.SetupRoutes(app, svc)

	require.NoError(t, db.Create(&[]models.Level{
		{Level: 1, Experience: 0},
		{Level: 2, Experience: 100, Coins: 50},
	}).Error)

	return testEnv{App: app, DB: db, Svc: svc, Runner: runner}
}

type call struct {
	Method string
	Path   string
	Body   string
	User   string
	Roles  string
	Token  *string
}

func (e testEnv) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.Body != "" {
		body = strings.NewReader(c.Body)
	}
	req := httptest.NewRequest(c.Method, c.Path, body)
	req.Header.Set("Content-Type", "application/json")
	token := gatewayToken
	if c.Token != nil {
		token = *c.Token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.User != "" {
		req.Header.Set("X-User-ID", c.User)
	}
	if c.Roles != "" {
		req.Header.Set("X-User-Roles", c.Roles)
	}

	resp, err := e.App.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		out["_raw"] = string(raw)
	}
	return resp.StatusCode, out
}

const alice = "0b9f8c52-6f3e-4b7e-9d6c-2a1f4e5d7c10"

func TestGatewayTokenRequired(t *testing.T) {
	env := newTestEnv(t)

	empty := ""
	status, body := env.do(t, call{Method: http.MethodGet, Path: "/health", Token: &empty})
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "gateway authentication token missing", body["error"])

	wrong := "nope"
	status, _ = env.do(t, call{Method: http.MethodGet, Path: "/health", Token: &wrong})
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, body = env.do(t, call{Method: http.MethodGet, Path: "/health"})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestUserRoutesNeedUserContext(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet"})
	require.Equal(t, fiber.StatusUnauthorized, status)

	// first request provisions the user and an empty wallet
	status, body := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 0, body["balance"])

	user, err := env.Svc.Users.Get(context.Background(), alice)
	require.NoError(t, err)
	require.NotNil(t, user.Wallet)
}

func TestCompleteMissionErrors(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, call{Method: http.MethodPost, Path: "/missions/00000000-0000-0000-0000-000000000000/complete", User: alice})
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, "mission not found", body["error"])

	m := models.Mission{
		Title:  "Make 3 transactions",
		ForAll: true,
		Requirements: []models.MissionRequirement{
			{StrategyKey: services.StrategyTransactionsCount, Goal: 3},
		},
	}
	require.NoError(t, env.DB.Create(&m).Error)

	status, body = env.do(t, call{Method: http.MethodPost, Path: "/missions/" + m.ID + "/complete", User: alice})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "mission not yet complete", body["error"])

	targeted := models.Mission{Title: "Somebody else", ForAll: false}
	require.NoError(t, env.DB.Create(&targeted).Error)
	status, _ = env.do(t, call{Method: http.MethodPost, Path: "/missions/" + targeted.ID + "/complete", User: alice})
	require.Equal(t, fiber.StatusForbidden, status)
}

func TestCompleteMissionFlow(t *testing.T) {
	env := newTestEnv(t)
	m := models.Mission{
		Title:      "Make 3 transactions",
		Coins:      25,
		Experience: 1,
		ForAll:     true,
		Requirements: []models.MissionRequirement{
			{StrategyKey: services.StrategyTransactionsCount, Goal: 3},
		},
	}
	require.NoError(t, env.DB.Create(&m).Error)

	// provision, then fund through the admin API
	status, _ := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	for i := 0; i < 3; i++ {
		status, _ = env.do(t, call{
			Method: http.MethodPost, Path: "/s/admin/coins/grant", User: alice, Roles: "admin",
			Body: `{"user_id":"` + alice + `","amount":10}`,
		})
		require.Equal(t, fiber.StatusCreated, status)
	}

	status, body := env.do(t, call{Method: http.MethodPost, Path: "/missions/" + m.ID + "/complete", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["success"])
	require.Equal(t, true, body["new_completion"])

	status, body = env.do(t, call{Method: http.MethodGet, Path: "/missions/" + m.ID + "/state", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, string(services.StatePendingReward), body["state"])

	_, err := env.Runner.Drain(context.Background())
	require.NoError(t, err)

	status, body = env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 55, body["balance"])

	status, body = env.do(t, call{Method: http.MethodPost, Path: "/missions/" + m.ID + "/complete", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, false, body["new_completion"])

	status, body = env.do(t, call{Method: http.MethodGet, Path: "/user/level", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 1, body["experience"])
	require.EqualValues(t, 99, body["experience_to_go"])
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = env.do(t, call{
		Method: http.MethodPost, Path: "/s/admin/coins/grant", User: alice,
		Body: `{"user_id":"` + alice + `","amount":10}`,
	})
	require.Equal(t, fiber.StatusForbidden, status)

	status, body := env.do(t, call{
		Method: http.MethodPost, Path: "/s/admin/coins/deduct", User: alice, Roles: "admin",
		Body: `{"user_id":"` + alice + `","amount":10}`,
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	require.Contains(t, body["error"], "insufficient funds")

	status, _ = env.do(t, call{
		Method: http.MethodPost, Path: "/s/admin/coins/grant", User: alice, Roles: "admin",
		Body: `{"user_id":"` + alice + `","amount":-3}`,
	})
	require.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.do(t, call{
		Method: http.MethodPost, Path: "/s/admin/xp/grant", User: alice, Roles: "admin",
		Body: `{"user_id":"` + alice + `","xp":150}`,
	})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, []any{float64(2)}, body["levels_reached"])

	status, body = env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 50, body["balance"])
}

func TestNotificationRoutes(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	_, err := env.Svc.Wallet.AddFunds(context.Background(), alice, 5, "gift")
	require.NoError(t, err)
	_, err = env.Svc.Wallet.AddFunds(context.Background(), alice, 5, "gift")
	require.NoError(t, err)

	status, body := env.do(t, call{Method: http.MethodGet, Path: "/user/notifications", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 2, body["total_items"])
	require.EqualValues(t, 2, body["unread"])
	first := body["notifications"].([]any)[0].(map[string]any)

	status, _ = env.do(t, call{Method: http.MethodPatch, Path: "/user/notifications/" + first["id"].(string) + "/read", User: alice})
	require.Equal(t, fiber.StatusOK, status)

	status, body = env.do(t, call{Method: http.MethodPatch, Path: "/user/notifications/read-all", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 1, body["updated"])

	status, _ = env.do(t, call{Method: http.MethodPatch, Path: "/user/notifications/00000000-0000-0000-0000-000000000000/read", User: alice})
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminRoutesDoNotProvisionCaller(t *testing.T) {
	env := newTestEnv(t)
	const admin = "5d2e0c4a-8b1f-4f6a-9c3e-7a8b9c0d1e2f"
	status, _ := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = env.do(t, call{
		Method: http.MethodPost, Path: "/s/admin/coins/grant", User: admin, Roles: "admin",
		Body: `{"user_id":"` + alice + `","amount":10}`,
	})
	require.Equal(t, fiber.StatusCreated, status)

	_, err := env.Svc.Users.Get(context.Background(), admin)
	require.ErrorIs(t, err, services.ErrNotFound)
	var wallets int64
	require.NoError(t, env.DB.Model(&models.Wallet{}).Count(&wallets).Error)
	require.EqualValues(t, 1, wallets)
}

func TestNotificationStream(t *testing.T) {
	env := newTestEnv(t)
	interval := services.StreamInterval
	services.StreamInterval = 20 * time.Millisecond
	t.Cleanup(func() { services.StreamInterval = interval })

	status, _ := env.do(t, call{Method: http.MethodGet, Path: "/user/wallet", User: alice})
	require.Equal(t, fiber.StatusOK, status)
	_, err := env.Svc.Wallet.AddFunds(context.Background(), alice, 1, "before connecting")
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go env.App.Listener(ln)
	t.Cleanup(func() { _ = env.App.ShutdownWithTimeout(2 * time.Second) })

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/user/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+gatewayToken)
	req.Header.Set("X-User-ID", alice)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	_, err = env.Svc.Wallet.AddFunds(context.Background(), alice, 5, "gift")
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line != "event: notification\n" {
			continue
		}
		data, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(data, "data: "), data)

		var n models.Notification
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &n))
		require.Equal(t, "gift", n.Title)
		require.Equal(t, models.NotificationTransaction, n.Kind)
		break
	}
}
