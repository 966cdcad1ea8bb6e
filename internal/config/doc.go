// Package config provides configuration loading for the weft server.
//
// Settings come from defaults, then an optional weft.yaml, then WEFT_
// environment variables, with later sources winning. Nested keys map to
// environment variables with dots replaced by underscores, so
// session.max_sessions_per_ip is WEFT_SESSION_MAX_SESSIONS_PER_IP.
//
// # Configuration File Structure
//
//	server:
//	  address: ":8080"
//	  default_path: /
//	  trusted_proxies: [10.0.0.0/8]
//	session:
//	  max_sessions: 0
//	  max_sessions_per_ip: 100
//	  max_redirects: 10
//	  window_width: 80
//	  window_height: 24
//	transport:
//	  keepalive_interval: 50s
//	  keepalive_timeout: 10s
//	log:
//	  level: info
//	  format: auto
//	attachments:
//	  bucket: my-bucket
//	  prefix: weft/
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Address:", cfg.Server.Address)
package config
