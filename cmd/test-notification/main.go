package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/config"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/doc-approval/internal/infrastructure/external/templates"
)

// Isolated check of Lark IM delivery using the configured app credentials.
//
//	test-notification -config configs/config.yaml ou_xxx
//	test-notification -template approval.rejected someone@example.com

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	templateID := flag.String("template", entity.TemplateApprovalRequested, "notification template to render")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: test-notification [-config path] [-template id] <open_id|email>")
	}
	recipient := flag.Arg(0)

	fmt.Println("=== Lark IM Notification Test ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Lark.AppID == "" || cfg.Lark.AppSecret == "" {
		log.Fatalf("lark.app_id and lark.app_secret must be set (LARK_APP_ID / LARK_APP_SECRET)")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	text, err := templates.Render(*templateID, map[string]interface{}{
		"document_id":     "doc-notification-test",
		"stage_name":      "Review",
		"submitted_by":    "notification-test",
		"decided_by":      "notification-test",
		"comment":         "sent by test-notification",
		"granted_by":      "notification-test",
		"permission_type": string(entity.PermissionView),
	})
	if err != nil {
		log.Fatalf("Failed to render template: %v", err)
	}

	idType := lark.ReceiveIDOpenID
	if strings.Contains(recipient, "@") {
		idType = lark.ReceiveIDEmail
	}

	fmt.Printf("Sending %q to %s %s\n", *templateID, idType, recipient)

	client := lark.NewClient(lark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		BaseURL:   cfg.Lark.BaseURL,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messageID, err := client.SendText(ctx, idType, recipient, text)
	if err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}

	fmt.Printf("✓ Message sent, message_id=%s\n", messageID)
}
