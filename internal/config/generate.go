package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const exampleIni = `; atra.ini -- system, path, and session configuration.
; Every key is optional; omitted keys fall back to built-in defaults.

[system]
robots_cache_size = 1024
web_graph_cache_size = 4096
max_file_size_in_memory = 4194304
max_temp_file_size_on_disc = 536870912
log_level = info
log_to_file = false

[paths]
root = atra-data
directories.database = bboltdb
directories.big_files = big_files
files.queue = queue.tmp
files.blacklist = blacklist.txt
files.web_graph = web_graph.ttl

[session]
service = atra
collection = default
crawl_job_id =
`

const exampleYaml = `# crawl.yaml -- crawl policy configuration.
# Every key is optional; omitted keys keep their built-in defaults.

user_agent: default
respect_robots_txt: true
respect_nofollow: true
crawl_embedded_data: false
crawl_forms: false
crawl_javascript: false
crawl_onclick_by_heuristic: false
max_file_size: 67108864
max_robots_age: 1h
ignore_sitemap: false
subdomains: true
cache: true
use_cookies: false
cookies:
  default: ""
  per_host: {}
headers: {}
proxies: []
tld: ""
delay: 1s
budget:
  default:
    kind: normal
    max_depth: 3
    max_depth_on_host: 3
    max_jump: 0
  per_host: {}
max_queue_age: 10
redirect_limit: 10
redirect_policy: loose
accept_invalid_certs: false
link_extractors:
  - html
decode_big_files_up_to: 16777216

concurrency: 0
backoff_initial: 1s
backoff_max: 1m
backoff_multiplier: 2.0
max_attempts: 5
request_timeout: 30s
gone_threshold: 3
quarantine_for: 1h
recrawl_after: 0s
`

// GenerateExampleConfig writes atra.ini and crawl.yaml, populated with
// every key at its built-in default, into dir. It refuses to overwrite
// either file if one already exists there, surfacing that as
// ErrInvalidConfig so the CLI layer can map it to spec.md §6's exit
// code 5 (directory exists).
func GenerateExampleConfig(dir string) error {
	iniPath := filepath.Join(dir, "atra.ini")
	yamlPath := filepath.Join(dir, "crawl.yaml")

	for _, p := range []string{iniPath, yamlPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %s already exists", ErrInvalidConfig, p)
		}
	}

	if err := os.WriteFile(iniPath, []byte(exampleIni), 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadConfigFail, iniPath, err)
	}
	if err := os.WriteFile(yamlPath, []byte(exampleYaml), 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadConfigFail, yamlPath, err)
	}
	return nil
}
