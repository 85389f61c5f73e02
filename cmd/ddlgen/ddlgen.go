// cmd/ddlgen/ddlgen.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

func mustWrite(path string, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
}

// Postgres 用の DDL を migrations に書き出す（リポジトリルートで実行）
func main() {
	outDir := filepath.Join("internal", "infra", "database", "migrations")

	outRegistration := filepath.Join(outDir, "init_registration.sql")
	mustWrite(outRegistration, regdom.RegistrationsTableDDL)
	fmt.Println("✅ Generated:", outRegistration)
}
