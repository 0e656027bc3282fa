package config

// DefaultConfigYAML returns a commented config file for init-config.
// Every value shown is the built-in default.
func DefaultConfigYAML() string {
	return `# actiongate configuration
# Generated by: actiongate init-config
#
# Routing order (cannot be changed):
#   1. Validate the action
#   2. Risk classification (risk section)
#   3. Boundary check against today's usage (boundaries section)
#   4. Autonomy policy (autonomy_level)
# Any boundary violation keeps an action out of auto_execute.
# Critical risk is never auto-executed.

# 1 manual: queue everything for approval
# 2 bounded: auto-execute low risk and allow-listed actions
# 3 supervised: auto-execute up to medium risk
# High risk escalates at levels 2 and 3.
# 4 full: auto-execute unless critical or a boundary is crossed
autonomy_level: 2

risk:
  # Factor weights, normalized by their sum.
  weights:
    financial: 0.35
    reversibility: 0.20
    category: 0.15
    urgency: 0.15
    visibility: 0.15
  # Upper score bound of each level; above high is critical.
  thresholds:
    safe: 20
    low: 40
    medium: 60
    high: 80
  # |value| that scores 50 on the financial curve.
  financial_half_value: 150
  reversible_score: 10
  irreversible_score: 80
  category_risk:
    trading: 50
    configuration: 40
    content: 30
    operations: 15
  urgency: {low: 0, normal: 25, high: 60, critical: 100}
  visibility: {internal: 15, external: 50, public: 85}
  additional_safe_actions: []
  reject_score: 95

boundaries:
  # Zero means unlimited.
  trading:
    max_daily_trades: 20
    max_daily_spend: 1000
    max_trade_value: 500
  content:
    max_daily_posts: 10
    max_weekly_blog_posts: 3
  build:
    max_daily_builds: 20
  deployment:
    require_review: true
    allow_list: []
  max_daily_spend: 2000
  # Per-category cap on a single action's value.
  value_thresholds: {}
  # Case-insensitive substrings searched in type, description and params.
  # Listing blocked_keywords replaces the built-in list.
  # blocked_keywords: ["seed phrase", "private key"]
  # Actions outside [start_hour, end_hour) UTC are violations.
  # time_window: {start_hour: 8, end_hour: 20}

pipeline:
  combination_penalty: 25
  max_steps_before_review: 5
  max_depth_before_review: 3
  complexity_penalty: 5
  max_complexity_penalty: 25
  data_flow_penalty: 20
  default_tool_risk: 30
  # tools:
  #   internal-report: {base_risk: 10, visibility: internal, reversibility: reversible}
  # tool_risk_overrides: {send-http: 60}

usage:
  # memory | sqlite | redis
  backend: memory
  # path: ~/.actiongate/usage.db
  # redis_addr: localhost:6379
  # redis_db: 0
  # key_prefix: actiongate:usage

# Hash-chained decision log.
# audit_log: ~/.actiongate/decisions.jsonl

# Queued and escalated decisions wait here for approve or deny.
# approvals_dir: ~/.actiongate/pending

# Webhook alerts. events: decision:made, decision:auto_execute,
# decision:queued, decision:escalated, decision:rejected,
# boundary:violation, usage:fault, pipeline:assessed
# alerts:
#   - url: https://hooks.slack.com/services/XXX
#     format: slack
#     events: [decision:escalated, decision:rejected, usage:fault]
`
}
