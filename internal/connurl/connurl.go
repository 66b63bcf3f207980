// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package connurl parses the connection URL spec.md §6.1 defines:
// `<scheme>://[user[:password]@]host[:port]/database[?opt=val&...]`. Any
// query option outside the recognized set is kept as a warning rather than
// a parse failure, per §6.1's "silently ignored... with a recorded
// warning" requirement.
package connurl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/docbridge/docbridge/internal/inference"
	"github.com/docbridge/docbridge/internal/util"
)

// AllowDiskUse is the tristate §9 explicitly requires preserving rather
// than collapsing to a boolean.
type AllowDiskUse string

const (
	AllowDiskUseDefault AllowDiskUse = "default"
	AllowDiskUseDisable AllowDiskUse = "disable"
	AllowDiskUseEnable  AllowDiskUse = "enable"
)

// Options is the fully parsed, validated connection configuration.
type Options struct {
	Scheme   string `validate:"required"`
	User     string
	Password string
	Host     string `validate:"required"`
	Port     string
	Database string `validate:"required"`

	AppName                  string
	TLS                      bool
	TLSAllowInvalidHostnames bool
	TLSCAFile                string
	ReadPreference           string `validate:"omitempty,oneof=primary primaryPreferred secondary secondaryPreferred nearest"`
	ReplicaSet               string
	LoginTimeoutSec          int
	RetryReads               bool
	ScanMethod               inference.SampleMethod `validate:"omitempty,oneof=random idForward idReverse all"`
	ScanLimit                int64
	SchemaName               string
	DefaultFetchSize         int
	RefreshSchema            bool
	DefaultAuthDB            string
	AllowDiskUse             AllowDiskUse `validate:"omitempty,oneof=default disable enable"`

	SSHUser                  string
	SSHHost                  string
	SSHPrivateKeyFile        string
	SSHPrivateKeyPassphrase  string
	SSHStrictHostKeyChecking bool
	SSHKnownHostsFile        string
}

// recognized is the full set of §6.1 query options; anything else is
// reported as a warning rather than rejected.
var recognized = map[string]bool{
	"appName": true, "tls": true, "tlsAllowInvalidHostnames": true, "tlsCAFile": true,
	"readPreference": true, "replicaSet": true, "loginTimeoutSec": true, "retryReads": true,
	"scanMethod": true, "scanLimit": true, "schemaName": true, "defaultFetchSize": true,
	"refreshSchema": true, "defaultAuthDb": true, "allowDiskUse": true,
	"sshUser": true, "sshHost": true, "sshPrivateKeyFile": true, "sshPrivateKeyPassphrase": true,
	"sshStrictHostKeyChecking": true, "sshKnownHostsFile": true,
}

var validate = validator.New()

// Parse parses raw into Options plus a list of human-readable warnings for
// any unrecognized-but-legal query option encountered.
func Parse(raw string) (*Options, []string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, util.NewKindError(util.KindInvalidConnectionProperties, "parsing connection URL", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, nil, util.NewKindError(util.KindInvalidConnectionProperties, "connection URL requires a scheme and host", nil)
	}

	opts := &Options{
		Scheme:       u.Scheme,
		Host:         u.Hostname(),
		Port:         u.Port(),
		Database:     strings.TrimPrefix(u.Path, "/"),
		SchemaName:   "_default",
		AllowDiskUse: AllowDiskUseDefault,
	}
	if u.User != nil {
		opts.User = u.User.Username()
		opts.Password, _ = u.User.Password()
	}

	var warnings []string
	q := u.Query()
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		if !recognized[key] {
			warnings = append(warnings, fmt.Sprintf("ignoring unrecognized connection option %q", key))
			continue
		}
		if err := applyOption(opts, key, v); err != nil {
			return nil, warnings, err
		}
	}

	if err := validate.Struct(opts); err != nil {
		return nil, warnings, util.NewKindError(util.KindInvalidConnectionProperties, "validating connection options", err)
	}
	return opts, warnings, nil
}

func applyOption(o *Options, key, v string) error {
	switch key {
	case "appName":
		o.AppName = v
	case "tls":
		o.TLS = parseBool(v)
	case "tlsAllowInvalidHostnames":
		o.TLSAllowInvalidHostnames = parseBool(v)
	case "tlsCAFile":
		o.TLSCAFile = v
	case "readPreference":
		o.ReadPreference = v
	case "replicaSet":
		o.ReplicaSet = v
	case "loginTimeoutSec":
		n, err := strconv.Atoi(v)
		if err != nil {
			return util.NewKindError(util.KindInvalidConnectionProperties, "loginTimeoutSec must be an integer", err)
		}
		o.LoginTimeoutSec = n
	case "retryReads":
		o.RetryReads = parseBool(v)
	case "scanMethod":
		o.ScanMethod = inference.SampleMethod(v)
	case "scanLimit":
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return util.NewKindError(util.KindInvalidConnectionProperties, "scanLimit must be an integer", err)
		}
		o.ScanLimit = n
	case "schemaName":
		o.SchemaName = v
	case "defaultFetchSize":
		n, err := strconv.Atoi(v)
		if err != nil {
			return util.NewKindError(util.KindInvalidConnectionProperties, "defaultFetchSize must be an integer", err)
		}
		o.DefaultFetchSize = n
	case "refreshSchema":
		o.RefreshSchema = parseBool(v)
	case "defaultAuthDb":
		o.DefaultAuthDB = v
	case "allowDiskUse":
		o.AllowDiskUse = AllowDiskUse(v)
	case "sshUser":
		o.SSHUser = v
	case "sshHost":
		o.SSHHost = v
	case "sshPrivateKeyFile":
		o.SSHPrivateKeyFile = v
	case "sshPrivateKeyPassphrase":
		o.SSHPrivateKeyPassphrase = v
	case "sshStrictHostKeyChecking":
		o.SSHStrictHostKeyChecking = parseBool(v)
	case "sshKnownHostsFile":
		o.SSHKnownHostsFile = v
	}
	return nil
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
