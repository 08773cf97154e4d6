package config

import (
	"fmt"
	"os"
)

// SampleDefinition is the starter pipeline definition written by `relforge init`.
const SampleDefinition = `# relforge pipeline definition
project:
  name: chatifier
  url: https://github.com/example/chatifier.git
  changelog: CHANGELOG.md

trigger:
  tag_pattern: "v*"
  allow_manual: true

runtime:
  tool: python3
  version: "3.11"

build:
  packager: pyinstaller
  entry_point: chatifier/cli.py
  output_name: chatifier
  deps_install:
    - pip install pyinstaller
    - pip install -e .

platforms:
  - os: linux
    executable: chatifier
    asset: chatifier-linux
  - os: windows
    executable: chatifier.exe
    asset: chatifier-windows
  - os: darwin
    executable: chatifier
    asset: chatifier-macos

storage:
  dir: ./artifacts
  retention_days: 30

forge:
  type: github
  owner: example
  repo: chatifier
  auth:
    type: token
    token_env: RELFORGE_TOKEN

daemon:
  listen: ":8080"
  queue_size: 100
`

// WriteSample writes the starter definition to path. Refuses to overwrite
// unless force is set.
func WriteSample(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return os.WriteFile(path, []byte(SampleDefinition), 0o644)
}
