package client

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Account 上传给服务端的账号
type Account struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ProjectID    string `json:"projectId,omitempty"`
}

type fileAccount struct {
	Email            string `yaml:"email"`
	RefreshToken     string `yaml:"refreshToken"`
	ProjectID        string `yaml:"projectId"`
	ManagedProjectID string `yaml:"managedProjectId"`
}

// ParseAccounts 解析账号文件，支持 JSON 和 YAML，
// 顶层可以是 {accounts: [...]} 或账号列表。projectId 缺失时使用 managedProjectId。
func ParseAccounts(data []byte) ([]Account, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("accounts file is empty")
	}

	var entries []fileAccount
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode accounts: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Accounts []fileAccount `yaml:"accounts"`
		}
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode accounts: %w", err)
		}
		entries = wrapped.Accounts
	default:
		return nil, errors.New("accounts file must be a list or an object with an accounts field")
	}

	accounts := make([]Account, 0, len(entries))
	for i, e := range entries {
		email := strings.TrimSpace(e.Email)
		if email == "" || e.RefreshToken == "" {
			return nil, fmt.Errorf("account %d: email and refreshToken are required", i)
		}
		project := e.ProjectID
		if project == "" {
			project = e.ManagedProjectID
		}
		accounts = append(accounts, Account{
			Email:        email,
			RefreshToken: e.RefreshToken,
			ProjectID:    project,
		})
	}
	return accounts, nil
}
