package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/compositor/internal/assemble"
	"github.com/ivlev/compositor/internal/preset"
	"github.com/ivlev/compositor/internal/probe"
	"github.com/ivlev/compositor/internal/tree"
)

func main() {
	inputPtr := flag.String("input", "", "Путь к документу композиции (.yaml или .json)")
	outputPtr := flag.String("output", "", "Путь к результату (если пусто, генерируется автоматически в output/)")
	presetsPtr := flag.String("presets", "", "Lua-пресеты через запятую, применяются по порядку")
	widthPtr := flag.Int("width", 0, "Ширина (0 - из документа)")
	heightPtr := flag.Int("height", 0, "Высота (0 - из документа)")
	fpsPtr := flag.Int("fps", 0, "FPS (0 - из документа)")
	durationPtr := flag.Float64("duration", 0, "Общая длительность (0 - из документа или по ссылкам)")
	parallelPtr := flag.Bool("parallel", false, "Параллельное разрешение независимых поддеревьев")
	timeoutPtr := flag.Duration("timeout", 2*time.Minute, "Общий таймаут сборки")

	flag.Parse()

	if *inputPtr == "" {
		log.Fatalf("[-] Ошибка: не указан документ композиции (-input)")
	}

	root, err := tree.ReadDocument(*inputPtr)
	if err != nil {
		log.Fatalf("[-] Ошибка чтения документа: %v", err)
	}
	fmt.Printf("[*] Документ: %s | Узлов верхнего уровня: %d\n", *inputPtr, len(root.Children))

	// Пресеты применяются до разрешения длительностей; сломанный пресет
	// пропускается, накопленное состояние сохраняется.
	if *presetsPtr != "" {
		for _, path := range strings.Split(*presetsPtr, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			next, err := applyPresetFile(root, path)
			if err != nil {
				log.Printf("[!] Пресет %s пропущен: %v", path, err)
				continue
			}
			root = next
			fmt.Printf("[*] Применён пресет: %s\n", path)
		}
	}

	if *widthPtr > 0 {
		root.Config.Width = *widthPtr
	}
	if *heightPtr > 0 {
		root.Config.Height = *heightPtr
	}
	if *fpsPtr > 0 {
		root.Config.FPS = *fpsPtr
	}
	if *durationPtr > 0 {
		root.Config.Duration = durationPtr
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutPtr)
	defer cancel()

	asm := assemble.New(&probe.FFprober{})
	asm.Resolver.Parallel = *parallelPtr

	out, err := asm.Assemble(ctx, root)
	if err != nil {
		log.Fatalf("[-] Ошибка сборки: %v", err)
	}

	fmt.Printf("[*] Разрешение: %dx%d @ %d FPS | Длительность: %.2fs (%d кадров)\n",
		out.Width, out.Height, out.FPS, out.Duration, out.DurationInFrames)

	finalOutput := *outputPtr
	if finalOutput == "" {
		os.MkdirAll("output", 0755)
		base := strings.TrimSuffix(filepath.Base(*inputPtr), filepath.Ext(*inputPtr))
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		finalOutput = filepath.Join("output", fmt.Sprintf("%s_%s.json", base, timestamp))
	}

	if strings.EqualFold(filepath.Ext(finalOutput), ".json") {
		err = tree.WriteJSON(out.Props, finalOutput)
	} else {
		err = tree.WriteDocument(out.Props, finalOutput)
	}
	if err != nil {
		log.Fatalf("[-] Ошибка записи результата: %v", err)
	}

	fmt.Printf("[+++] Успех! Результат: %s\n", finalOutput)
}

// applyPresetFile runs one Lua preset against the current tree. The kind
// comes from the file name: name.children.lua, name.data.lua etc.;
// without a marker the preset is treated as full.
func applyPresetFile(root *tree.Root, path string) (*tree.Root, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := &preset.Preset{
		ID:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:   kindFromName(path),
		Source: string(src),
	}

	patch, err := p.Run(root)
	if err != nil {
		return nil, err
	}

	return preset.Apply(root, patch)
}

func kindFromName(path string) preset.Kind {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(name, "."); i >= 0 {
		switch k := preset.Kind(name[i+1:]); k {
		case preset.Full, preset.Children, preset.Data, preset.Context, preset.Effects:
			return k
		}
	}
	return preset.Full
}
