package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// ExemptionReason explains why an infrastructure app is never blocked.
type ExemptionReason string

const (
	ExemptNone        ExemptionReason = ""
	ExemptInputMethod ExemptionReason = "input_method"
	ExemptPicker      ExemptionReason = "picker"
	ExemptSettings    ExemptionReason = "settings"
)

// settingsSurfaces must stay reachable so the user can always disable the service.
var settingsSurfaces = []domain.AppID{
	"com.android.settings",
	"com.android.permissioncontroller",
	"com.google.android.permissioncontroller",
	"com.android.packageinstaller",
	"com.google.android.packageinstaller",
	"gnome-control-center",
	"systemsettings",
	"polkit-gnome-authentication-agent-1",
}

// systemPickers lets allowed apps attach files and photos.
var systemPickers = []domain.AppID{
	"com.android.documentsui",
	"com.android.providers.downloads",
	"com.android.providers.downloads.ui",
	"com.android.providers.media",
	"com.android.externalstorage",
	"com.android.htmlviewer",
	"com.android.mtp",
	"com.google.android.documentsui",
	"com.google.android.apps.docs",
	"com.google.android.apps.photos",
	"com.google.android.providers.media.module",
	"com.google.android.apps.nbu.files",
	"com.samsung.android.documentsui",
	"com.sec.android.app.myfiles",
	"com.samsung.android.provider.filteredprovider",
	"com.sec.android.provider.badge",
	"com.mi.android.globalFileexplorer",
	"com.miui.gallery",
	"com.miui.securitycenter",
	"com.coloros.filemanager",
	"com.coloros.photos",
	"com.coloros.gallery3d",
	"com.oneplus.filemanager",
	"com.oneplus.gallery",
	"com.vivo.filemanager",
	"com.vivo.gallery",
	"com.huawei.filemanager",
	"com.huawei.photos",
	"com.cx.fileexplorer",
	"com.mixplorer",
	"com.lonelycatgames.Xplore",
	"com.alphainventor.filemanager",
	"com.android.camera",
	"com.android.camera2",
	"com.google.android.GoogleCamera",
	"com.samsung.android.camera",
	"com.sec.android.app.camera",
	"com.miui.camera",
	"com.oppo.camera",
	"com.oneplus.camera",
	"xdg-desktop-portal",
	"xdg-desktop-portal-gtk",
	"xdg-desktop-portal-kde",
	"xdg-desktop-portal-gnome",
}

// Loose patterns catch vendor pickers not listed above.
var (
	pickerSuffixes   = []string{".documentsui"}
	pickerSubstrings = []string{"providers.media", "filemanager", "gallery"}
)

// systemShells are OS surfaces such as the notification shade.
var systemShells = []domain.AppID{
	"com.android.systemui",
	"gnome-shell",
	"plasmashell",
}

var knownLaunchers = []domain.AppID{
	"com.google.android.apps.nexuslauncher",
	"com.sec.android.app.launcher",
	"com.miui.home",
	"com.oppo.launcher",
	"com.oneplus.launcher",
	"com.vivo.launcher",
	"com.huawei.android.launcher",
	"com.microsoft.launcher",
	"com.teslacoilsw.launcher",
	"com.lge.launcher3",
	"com.asus.launcher",
	"com.motorola.launcher3",
	"com.realme.launcher",
	"com.nothing.launcher",
}

// SystemAllowlist holds the platform-infrastructure exemptions.
// They are evaluated before, and take precedence over, HardBlocked/NotSelected.
type SystemAllowlist struct {
	settings  domain.AllowSet
	pickers   domain.AllowSet
	shells    domain.AllowSet
	launchers domain.AllowSet
	defaults  domain.DeviceDefaults
}

// NewSystemAllowlist creates the built-in exemption list.
func NewSystemAllowlist(defaults domain.DeviceDefaults) *SystemAllowlist {
	return &SystemAllowlist{
		settings:  domain.NewAllowSet(settingsSurfaces...),
		pickers:   domain.NewAllowSet(systemPickers...),
		shells:    domain.NewAllowSet(systemShells...),
		launchers: domain.NewAllowSet(knownLaunchers...),
		defaults:  defaults,
	}
}

// AddSettings registers an extra settings surface (from config).
func (s *SystemAllowlist) AddSettings(apps ...domain.AppID) {
	for _, app := range apps {
		s.settings.Add(app)
	}
}

// AddPickers registers extra picker apps (from config).
func (s *SystemAllowlist) AddPickers(apps ...domain.AppID) {
	for _, app := range apps {
		s.pickers.Add(app)
	}
}

// Exemption returns why app is exempt, or ExemptNone.
func (s *SystemAllowlist) Exemption(app domain.AppID) ExemptionReason {
	if s.isInputMethod(app) {
		return ExemptInputMethod
	}
	if s.settings.Contains(app) {
		return ExemptSettings
	}
	if s.isPicker(app) {
		return ExemptPicker
	}
	return ExemptNone
}

func (s *SystemAllowlist) isInputMethod(app domain.AppID) bool {
	if s.defaults == nil {
		return false
	}
	for _, ime := range s.defaults.InputMethods() {
		if ime == app {
			return true
		}
	}
	return false
}

func (s *SystemAllowlist) isPicker(app domain.AppID) bool {
	if s.pickers.Contains(app) {
		return true
	}
	id := string(app)
	for _, suffix := range pickerSuffixes {
		if strings.HasSuffix(id, suffix) {
			return true
		}
	}
	for _, sub := range pickerSubstrings {
		if strings.Contains(id, sub) {
			return true
		}
	}
	return false
}

// Category picks the message wording for a blocked app.
func (s *SystemAllowlist) Category(app domain.AppID) domain.BlockCategory {
	if s.shells.Contains(app) {
		return domain.CategorySystemShell
	}
	if s.IsLauncher(app) {
		return domain.CategoryLauncher
	}
	return domain.CategoryApp
}

// IsLauncher reports whether app is the home screen.
func (s *SystemAllowlist) IsLauncher(app domain.AppID) bool {
	if s.defaults != nil {
		if l := s.defaults.Launcher(); l != "" && l == app {
			return true
		}
	}
	return s.launchers.Contains(app) || strings.Contains(string(app), "launcher")
}
