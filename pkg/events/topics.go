package events

// Backend progress events.
const (
	PPAProgress          = "ppa-progress"
	PHPInstallProgress   = "php-install-progress"
	PHPUninstallProgress = "php-uninstall-progress"
)

// Externally originated intents (system tray menu).
const (
	TrayStartAll = "tray-start-all"
	TrayStopAll  = "tray-stop-all"
)

const topicPrefix = "servermark.events."

func topic(name string) string {
	return topicPrefix + name
}
